package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"midiplayer/storage"
)

var (
	minioPrefix    string
	minioStats     bool
	minioRecursive bool
	minioDelete    bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理MinIO存储桶中的歌曲和乐器音色，支持列出文件、查看统计信息、删除目录。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := storage.NewMinioClientFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("创建MinIO客户端失败: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if minioDelete {
			if minioPrefix == "" {
				return fmt.Errorf("删除操作需要指定目录前缀")
			}
			n, err := client.DeleteDirectory(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("删除目录失败: %w", err)
			}
			fmt.Fprintf(out, "已删除 %s 下的 %d 个对象\n", minioPrefix, n)
			return nil
		}

		objects, stats, err := client.ListObjects(ctx, minioPrefix, minioRecursive || minioStats)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}

		if minioStats {
			fmt.Fprintf(out, "对象数: %d\n", stats.TotalObjects)
			fmt.Fprintf(out, "总大小: %s\n", storage.FormatSize(stats.TotalSize))
			return nil
		}

		for _, obj := range objects {
			fmt.Fprintf(out, "%-60s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "递归列出子目录")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	minioCmd.Example = `  # 列出所有音色
  midiplayer minio -p "patches/" -r

  # 显示存储桶统计信息
  midiplayer minio -s

  # 删除目录及其下的所有文件
  midiplayer minio -d -p "patches/old/"`
}
