package cmd

import (
	"github.com/spf13/cobra"

	"midiplayer/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动播放控制服务",
	Long:  `启动 HTTP 控制接口和 /ws/events 事件流，可以同时管理多个播放器。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fetcher, cleanup := newFetcher(cfg)
		defer cleanup()
		return server.Start(cfg, newEngine(cfg), fetcher)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
