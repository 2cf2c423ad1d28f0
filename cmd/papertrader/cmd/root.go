package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "A paper-trading engine with leveraged positions and live price feeds",
	Long: `Papertrader is a simulated trading engine written in Go.

It provides:
  - Virtual accounts with a fixed starting balance
  - Leveraged buys and sells with margin accounting
  - Stop-loss and take-profit triggers enforced by a background monitor
  - Live crypto and equity prices with a fail-soft fallback chain
  - Portfolio snapshots and a total-P&L leaderboard`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

var debugLogging bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "enable debug logging")
}

func newLogger() (*zap.Logger, error) {
	if debugLogging {
		return zap.NewDevelopment()
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}
