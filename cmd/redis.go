package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"midiplayer/cache"
)

var redisPurge bool

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试音色缓存使用的Redis连接并进行基本读写操作，--purge 清空所有缓存的音色。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer cache.CloseRedis()
		fmt.Fprintln(out, "Redis连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := cache.CheckRedis(ctx); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Fprintln(out, "Redis基本操作测试成功！")

		if redisPurge {
			n, err := cache.NewPatchCache(cache.RedisClient, cfg.PatchCacheTTL).Purge(ctx)
			if err != nil {
				return fmt.Errorf("清空音色缓存失败: %w", err)
			}
			fmt.Fprintf(out, "已删除 %d 个缓存的音色\n", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().BoolVar(&redisPurge, "purge", false, "清空缓存的乐器音色")
}
