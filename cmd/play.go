package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"midiplayer/core/engine"
	"midiplayer/core/event"
	"midiplayer/core/player"
	"midiplayer/core/utils"
	"midiplayer/logger"
)

var (
	playName     string
	playPatchURL string
	playWatch    bool
	playLog      bool
)

var playCmd = &cobra.Command{
	Use:   "play <file|url>",
	Short: "播放一首 MIDI",
	Long:  `从本地文件、http(s) 地址或 s3:// 对象播放 MIDI，缺失的乐器音色会自动下载。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location := args[0]
		name := playName
		if name == "" {
			name = filepath.Base(location)
		}
		patchURL := playPatchURL
		if patchURL == "" {
			patchURL = cfg.PatchURL
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		finished := make(chan struct{}, 1)
		pcfg := player.Config{
			PatchURL:   patchURL,
			SampleRate: cfg.SampleRate,
			EventSink: func(e event.Event) {
				// 每个音频块都会带一次进度，只在 --log 时输出
				if e.Kind != event.KindPlay || e.Seconds() == 0 || playLog {
					if playLog || cfg.Logging {
						logger.Info("[play] "+e.Name(), logger.String("message", e.Message), logger.Float64("time", e.Seconds()))
					} else {
						fmt.Println(formatEvent(e))
					}
				}
				if e.Kind == event.KindEnd || e.Kind == event.KindError {
					select {
					case finished <- struct{}{}:
					default:
					}
				}
			},
		}

		fetcher, cleanup := newFetcher(cfg)
		defer cleanup()
		eng := newEngine(cfg)
		defer engine.Shutdown(eng)

		p := player.New(eng, fetcher, pcfg)
		defer p.Close()

		if !p.Play(player.FromURL(location, name)) {
			return fmt.Errorf("cannot play %s", location)
		}

		if playWatch {
			go func() {
				err := utils.WatchFile(ctx, location, 300*time.Millisecond, func() {
					logger.Info("[play] file changed, restarting", logger.String("path", location))
					p.Play(player.FromURL(location, name))
				})
				if err != nil {
					logger.Error("[play] watch failed", logger.String("path", location), logger.ErrorField(err))
				}
			}()
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-finished:
				if !playWatch {
					return nil
				}
			}
		}
	},
}

func formatEvent(e event.Event) string {
	s := e.Name()
	if e.Message != "" {
		s += " " + e.Message
	}
	if e.Time != nil {
		s += fmt.Sprintf(" t=%.2fs", *e.Time)
	}
	if e.Err != nil {
		s += " error=" + e.Err.Error()
	}
	return s
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().StringVarP(&playName, "name", "n", "", "显示用的歌曲名，默认取文件名")
	playCmd.Flags().StringVar(&playPatchURL, "patch-url", "", "乐器音色的基础地址，默认 MIDI_PATCH_URL")
	playCmd.Flags().BoolVarP(&playWatch, "watch", "w", false, "本地文件变化时重新播放")
	playCmd.Flags().BoolVar(&playLog, "log", false, "用日志输出事件")

	playCmd.Example = `  # 播放本地文件
  midiplayer play songs/fur-elise.mid

  # 播放远程文件并指定显示名
  midiplayer play https://example.com/song.mid -n "Für Elise"

  # 编辑文件时自动重新播放
  midiplayer play songs/draft.mid -w`
}
