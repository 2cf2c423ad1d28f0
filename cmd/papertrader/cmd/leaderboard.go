package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print accounts ranked by total P&L",
	RunE:  runLeaderboard,
}

var (
	leaderboardConfigPath string
	leaderboardLimit      int
)

func init() {
	rootCmd.AddCommand(leaderboardCmd)

	leaderboardCmd.Flags().StringVarP(&leaderboardConfigPath, "config", "f", "", "path to config file (defaults apply if omitted)")
	leaderboardCmd.Flags().IntVarP(&leaderboardLimit, "limit", "n", 10, "number of accounts to show")
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	st, closeStore, err := openStoreFromFlag(ctx, leaderboardConfigPath)
	if err != nil {
		return err
	}
	defer closeStore()

	entries, err := st.Leaderboard(ctx, leaderboardLimit)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}

	fmt.Printf("%-4s %-38s %14s %12s %8s\n", "RANK", "ACCOUNT", "PORTFOLIO", "TOTAL P&L", "WIN%")
	for _, e := range entries {
		fmt.Printf("%-4d %-38s %14.2f %12.2f %7.1f%%\n",
			e.Rank, e.AccountID, e.PortfolioValue, e.TotalPnL, e.WinRate)
	}
	return nil
}
