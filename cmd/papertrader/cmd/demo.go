package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenithtrade/papertrader/engine"
	"github.com/zenithtrade/papertrader/feed"
	"github.com/zenithtrade/papertrader/oracle"
	"github.com/zenithtrade/papertrader/store"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted trading session against a throwaway database",
	Long: `Run a self-contained demo session without any network feeds.

The demo provisions a fresh account, seeds the asset catalog, and walks
through a leveraged buy, a price move, and a closing sell, printing the
margin and P&L arithmetic at each step.

Example:
  papertrader demo`,
	RunE: runDemo,
}

var demoDir string

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().StringVar(&demoDir, "dir", "", "directory for the demo database (default: temp)")
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := zap.NewNop()

	dir := demoDir
	if dir == "" {
		dir = "."
	}
	dbPath := filepath.Join(dir, "papertrader-demo.db")

	st, err := store.NewSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open demo db: %w", err)
	}
	defer st.Close()

	if err := st.SeedAssets(ctx, defaultAssets); err != nil {
		return fmt.Errorf("seed assets: %w", err)
	}

	o, err := oracle.New(oracle.Options{TTL: 5 * time.Second, FetchTimeout: time.Second}, logger)
	if err != nil {
		return err
	}

	eng := engine.New(st, o, nil, engine.Options{}, logger)

	sessionID := uuid.NewString()
	account, err := eng.Provision(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("provision account: %w", err)
	}
	fmt.Printf("Provisioned account %s with $%.2f\n\n", account.ID, account.WalletBalance)

	setPrice := func(symbol string, price float64) {
		o.Prime(feed.Quote{Symbol: symbol, Price: price, Time: time.Now().UTC()})
		o.Wait()
		_ = st.UpdateAssetPrice(ctx, symbol, price, 0)
	}

	// Buy 0.1 BTC at 95k with 5x leverage: 9500 notional, 1900 margin.
	setPrice("BTC", 95000)
	res, err := eng.SubmitTrade(ctx, engine.TradeRequest{
		AccountID: account.ID,
		Symbol:    "BTC",
		Side:      store.SideBuy,
		Quantity:  0.1,
		Leverage:  5,
	})
	if err != nil {
		return err
	}
	fmt.Printf("BUY 0.1 BTC @ %.2f (5x)\n", res.Price)
	fmt.Printf("  notional: $%.2f  margin: $%.2f\n\n", res.TotalValue, res.MarginUsed)

	// Price rallies to 100k; close the position.
	setPrice("BTC", 100000)
	res, err = eng.SubmitTrade(ctx, engine.TradeRequest{
		AccountID: account.ID,
		Symbol:    "BTC",
		Side:      store.SideSell,
		Quantity:  0.1,
	})
	if err != nil {
		return err
	}
	fmt.Printf("SELL 0.1 BTC @ %.2f\n", res.Price)
	fmt.Printf("  realized P&L: $%.2f  wallet: $%.2f\n\n", res.RealizedPnL, res.NewBalance)

	view, err := eng.Portfolio(ctx, account.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Final portfolio value: $%.2f (total P&L $%.2f, win rate %.1f%%)\n",
		view.Account.PortfolioValue, view.Account.TotalPnL, view.Account.WinRate)
	fmt.Printf("\nDemo database: %s\n", dbPath)
	return nil
}
