package cmd

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"midiplayer/core/engine"
	"midiplayer/core/patch"
	"midiplayer/core/utils"
	"midiplayer/storage"
)

var (
	patchesBase   string
	patchesWarm   bool
	patchesOut    string
	patchesUpload string
)

var patchesCmd = &cobra.Command{
	Use:   "patches <file|url>",
	Short: "列出歌曲缺失的乐器音色",
	Long: `加载歌曲并列出引擎缺少的乐器音色及其下载地址。
--warm 会下载一遍（配置了 Redis 时写入缓存），--out 保存到本地目录，--upload 上传到 MinIO。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base := patchesBase
		if base == "" {
			base = cfg.PatchURL
		}

		fetcher, cleanup := newFetcher(cfg)
		defer cleanup()
		eng := newEngine(cfg)
		if err := engine.Init(eng); err != nil {
			return err
		}
		defer engine.Shutdown(eng)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
		defer cancel()

		data, err := fetcher.Fetch(ctx, args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		song, err := engine.Load(eng, data, engine.CreateOptions(cfg.SampleRate))
		if err != nil {
			return err
		}
		names, err := engine.MissingInstruments(eng, song)
		eng.FreeSong(song)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(out, "没有缺失的乐器音色")
			return nil
		}
		for i, name := range names {
			fmt.Fprintf(out, "%3d  %-24s %s\n", i, name, patch.Location(base, name))
		}

		if !patchesWarm && patchesOut == "" && patchesUpload == "" {
			return nil
		}

		var minioClient *storage.MinioClient
		if patchesUpload != "" {
			if minioClient, err = storage.NewMinioClientFromConfig(cfg); err != nil {
				return err
			}
			if err := minioClient.EnsureBucket(ctx, cfg.MinioRegion); err != nil {
				return err
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, name := range names {
			name := name
			g.Go(func() error {
				location := patch.Location(base, name)
				data, err := fetcher.Fetch(gctx, location)
				if err != nil {
					return fmt.Errorf("%s: %w", location, err)
				}
				file := path.Base(location)
				if patchesOut != "" {
					if err := utils.WriteFile(filepath.Join(patchesOut, file), data); err != nil {
						return err
					}
				}
				if minioClient != nil {
					if err := minioClient.PutObject(gctx, path.Join(patchesUpload, file), data, "application/octet-stream"); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "已获取 %s (%s)\n", name, storage.FormatSize(int64(len(data))))
				return nil
			})
		}
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(patchesCmd)

	patchesCmd.Flags().StringVar(&patchesBase, "patch-url", "", "乐器音色的基础地址，默认 MIDI_PATCH_URL")
	patchesCmd.Flags().BoolVar(&patchesWarm, "warm", false, "下载所有缺失的音色")
	patchesCmd.Flags().StringVarP(&patchesOut, "out", "o", "", "把音色保存到本地目录")
	patchesCmd.Flags().StringVar(&patchesUpload, "upload", "", "把音色上传到 MinIO 的这个前缀下")
}
