package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fxpilot",
	Short: "An AI-assisted FX trading bot with backtesting and live monitoring",
	Long: `Fxpilot is an FX trading bot that turns AI judgments into structured
trading rules, then executes and supervises them.

It provides tools for:
  - Backtesting rule-driven strategies against historical tick data
  - Replaying Dukascopy .bi5 and CSV tick archives
  - Multi-layer live position monitoring with emergency stops
  - Risk-gated entries with confidence, spread and volatility checks
  - Trade journaling to SQLite or CSV

Complete documentation is available at https://github.com/rustyeddy/fxpilot`,
}

var verbose bool

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cobra.OnInitialize(func() {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	})
}
