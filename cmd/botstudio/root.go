package main

import (
	"context"
	"os"

	"github.com/sandevgo/botstudio/internal/config"
	"github.com/sandevgo/botstudio/pkg/log"
	"github.com/spf13/cobra"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "botstudio",
	Short: "BotStudio — conversation orchestration engine",
	Long:  `BotStudio routes user turns through LLM-backed bots with safety layers, history compression and trace recording.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}
