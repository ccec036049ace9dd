package cmd

import (
	"fmt"
	"log"
	"os"

	"Mx1Studio/config"
	"Mx1Studio/logger"
	"Mx1Studio/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mx1_studio",
	Short: "Mx1Studio is a timeline editing and export service.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.Init(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting Mx1Studio server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
