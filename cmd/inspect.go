package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"midiplayer/core/midiinfo"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file|url>",
	Short: "查看 MIDI 文件信息",
	Long:  `解析 SMF 头和事件，输出格式、音轨、速度、时长以及用到的乐器。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fetcher, cleanup := newFetcher(cfg)
		defer cleanup()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
		defer cancel()
		data, err := fetcher.Fetch(ctx, args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		info, err := midiinfo.Read(data)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "格式: %d\n", info.Format)
		fmt.Fprintf(out, "音轨: %d\n", info.Tracks)
		if len(info.TrackNames) > 0 {
			fmt.Fprintf(out, "音轨名: %s\n", strings.Join(info.TrackNames, ", "))
		}
		fmt.Fprintf(out, "分辨率: %d ticks/quarter\n", info.Resolution)
		fmt.Fprintf(out, "速度: %.1f BPM\n", info.Tempo)
		fmt.Fprintf(out, "音符: %d\n", info.Notes)
		fmt.Fprintf(out, "时长: %s\n", info.Duration.Round(10*time.Millisecond))
		for _, p := range info.Programs {
			fmt.Fprintf(out, "  通道 %2d  音色 %3d  %s\n", p.Channel+1, p.Number, p.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
