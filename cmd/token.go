package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"midiplayer/core/auth"
)

var (
	tokenOperator string
	tokenTTL      time.Duration
	tokenHash     string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "生成控制接口的访问令牌",
	Long: `用 JWT_SECRET 签发控制接口使用的 Bearer token。
--hash 输出密码的 bcrypt 哈希，可填入 CONTROL_PASSWORD_HASH。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if tokenHash != "" {
			hash, err := auth.HashPassword(tokenHash)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, hash)
			return nil
		}

		token, err := auth.NewSigner(cfg.JWTSecret, tokenTTL).GenerateToken(tokenOperator)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "cli", "写入 token 的操作者名")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "有效期")
	tokenCmd.Flags().StringVar(&tokenHash, "hash", "", "输出这个密码的 bcrypt 哈希")
}
