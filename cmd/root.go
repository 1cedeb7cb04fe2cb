package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"midiplayer/config"
	"midiplayer/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "midiplayer",
	Short: "midiplayer plays MIDI songs through a synthesis engine.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
