package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenithtrade/papertrader/store"
)

// defaultAssets is the tradable catalog seeded on first run. Crypto prices
// come from CoinGecko (or the Binance stream), equities from Alpaca.
var defaultAssets = []store.Asset{
	{Symbol: "BTC", Name: "Bitcoin", Type: store.AssetCrypto, MaxLeverage: 5, Active: true},
	{Symbol: "ETH", Name: "Ethereum", Type: store.AssetCrypto, MaxLeverage: 5, Active: true},
	{Symbol: "SOL", Name: "Solana", Type: store.AssetCrypto, MaxLeverage: 5, Active: true},
	{Symbol: "AVAX", Name: "Avalanche", Type: store.AssetCrypto, MaxLeverage: 3, Active: true},
	{Symbol: "LINK", Name: "Chainlink", Type: store.AssetCrypto, MaxLeverage: 3, Active: true},
	{Symbol: "XRP", Name: "XRP", Type: store.AssetCrypto, MaxLeverage: 3, Active: true},
	{Symbol: "DOGE", Name: "Dogecoin", Type: store.AssetCrypto, MaxLeverage: 2, Active: true},
	{Symbol: "ADA", Name: "Cardano", Type: store.AssetCrypto, MaxLeverage: 3, Active: true},
	{Symbol: "AAPL", Name: "Apple Inc.", Type: store.AssetEquity, MaxLeverage: 2, Active: true},
	{Symbol: "NVDA", Name: "NVIDIA Corp.", Type: store.AssetEquity, MaxLeverage: 2, Active: true},
	{Symbol: "TSLA", Name: "Tesla Inc.", Type: store.AssetEquity, MaxLeverage: 2, Active: true},
	{Symbol: "MSFT", Name: "Microsoft Corp.", Type: store.AssetEquity, MaxLeverage: 2, Active: true},
	{Symbol: "GOOGL", Name: "Alphabet Inc.", Type: store.AssetEquity, MaxLeverage: 2, Active: true},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", Type: store.AssetEquity, MaxLeverage: 2, Active: true},
	{Symbol: "META", Name: "Meta Platforms Inc.", Type: store.AssetEquity, MaxLeverage: 2, Active: true},
}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Manage the tradable asset catalog",
	Long: `Inspect and seed the asset catalog.

Subcommands:
  seed - Insert the default catalog (idempotent; existing rows are kept)
  list - Print the catalog with current prices

Examples:
  papertrader assets seed -f config.yaml
  papertrader assets list -f config.yaml`,
}

var assetsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the default asset catalog",
	RunE:  runAssetsSeed,
}

var assetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog assets and their current prices",
	RunE:  runAssetsList,
}

var assetsConfigPath string

func init() {
	rootCmd.AddCommand(assetsCmd)
	assetsCmd.AddCommand(assetsSeedCmd)
	assetsCmd.AddCommand(assetsListCmd)

	assetsCmd.PersistentFlags().StringVarP(&assetsConfigPath, "config", "f", "", "path to config file (defaults apply if omitted)")
}

func runAssetsSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	st, closeStore, err := openStoreFromFlag(ctx, assetsConfigPath)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.SeedAssets(ctx, defaultAssets); err != nil {
		return fmt.Errorf("seed assets: %w", err)
	}
	fmt.Printf("✓ Seeded %d assets\n", len(defaultAssets))
	return nil
}

func runAssetsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	st, closeStore, err := openStoreFromFlag(ctx, assetsConfigPath)
	if err != nil {
		return err
	}
	defer closeStore()

	assets, err := st.Assets(ctx)
	if err != nil {
		return fmt.Errorf("list assets: %w", err)
	}

	fmt.Printf("%-8s %-22s %-8s %10s %8s %6s\n", "SYMBOL", "NAME", "TYPE", "PRICE", "24H%", "LEV")
	for _, a := range assets {
		fmt.Printf("%-8s %-22s %-8s %10.2f %7.2f%% %5dx\n",
			a.Symbol, a.Name, a.Type, a.CurrentPrice, a.PriceChange24h, a.MaxLeverage)
	}
	return nil
}
