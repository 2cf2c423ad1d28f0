package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenithtrade/papertrader/config"
	"github.com/zenithtrade/papertrader/engine"
	"github.com/zenithtrade/papertrader/events"
	"github.com/zenithtrade/papertrader/feed"
	"github.com/zenithtrade/papertrader/oracle"
	"github.com/zenithtrade/papertrader/service"
	"github.com/zenithtrade/papertrader/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with all background loops",
	Long: `Start the paper-trading engine and its background loops:

  - price refresh: walks the asset catalog and refreshes feed prices
  - trigger sweep: force-closes holdings whose stop-loss or take-profit hit
  - snapshots: records one portfolio-value point per account

Trade events stream to WebSocket clients on the hub address and, when
brokers are configured, to Kafka.

Example:
  papertrader serve -f config.yaml`,
	RunE: runServe,
}

var serveConfigPath string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "f", "", "path to config file (defaults apply if omitted)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.SeedAssets(ctx, defaultAssets); err != nil {
		return fmt.Errorf("seed assets: %w", err)
	}

	o, err := oracle.New(oracle.Options{
		TTL:          cfg.Oracle.TTL.Std(),
		FetchTimeout: cfg.Oracle.FetchTimeout.Std(),
	}, logger)
	if err != nil {
		return fmt.Errorf("init oracle: %w", err)
	}

	coingecko := feed.NewCoinGecko(cfg.Oracle.FetchTimeout.Std())
	o.RegisterSource(store.AssetCrypto, coingecko)

	refreshSources := map[store.AssetType]feed.Source{
		store.AssetCrypto: coingecko,
	}
	if cfg.Feeds.Alpaca {
		alpaca := feed.NewAlpaca()
		o.RegisterSource(store.AssetEquity, alpaca)
		refreshSources[store.AssetEquity] = alpaca
	}

	pub, hub, closePub := buildPublisher(cfg, logger)
	defer closePub()

	eng := engine.New(st, o, pub, engine.Options{
		StartingBalance: cfg.Account.StartingBalance,
		MaxLeverage:     cfg.Engine.MaxLeverage,
	}, logger)

	monitor := service.NewTriggerMonitor(st, o, eng, logger)
	refresher := service.NewPriceRefresher(st, o, refreshSources, logger)
	snapshotter := service.NewSnapshotter(st, logger)

	var wg sync.WaitGroup

	if hub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Run(ctx)
		}()
		startHubServer(ctx, &wg, cfg.Events.HubAddr, hub, logger)
	}

	if cfg.Feeds.BinanceStream {
		symbols, err := cryptoSymbols(ctx, st)
		if err != nil {
			return err
		}
		// The stream primes the oracle directly; the refresh loop still owns
		// catalog price updates.
		stream := feed.NewBinanceStream(symbols, func(q feed.Quote) { o.Prime(q) }, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("binance stream stopped", zap.Error(err))
			}
		}()
	}

	loops := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context) error
	}{
		{"price-refresh", cfg.Loops.PriceRefresh.Std(), refresher.Refresh},
		{"trigger-sweep", cfg.Loops.TriggerSweep.Std(), monitor.Sweep},
		{"snapshots", cfg.Loops.Snapshot.Std(), snapshotter.Snapshot},
	}
	for _, l := range loops {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()
			service.Periodic(ctx, logger, l.name, l.interval, l.fn)
		}()
	}

	logger.Info("papertrader running",
		zap.String("store", cfg.Store.Backend),
		zap.Float64("starting_balance", cfg.Account.StartingBalance),
		zap.Int("max_leverage", cfg.Engine.MaxLeverage))

	<-ctx.Done()
	logger.Info("shutting down")
	wg.Wait()
	return nil
}

// buildPublisher assembles the event fan-out from config. The hub is
// returned separately so serve can run it and mount its handler.
func buildPublisher(cfg *config.Config, logger *zap.Logger) (events.Publisher, *events.Hub, func()) {
	var (
		pubs []events.Publisher
		hub  *events.Hub
	)

	if cfg.Events.HubAddr != "" {
		hub = events.NewHub(logger)
		pubs = append(pubs, hub)
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		pubs = append(pubs, events.NewKafka(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
	}

	if len(pubs) == 0 {
		return events.Nop{}, nil, func() {}
	}

	multi := events.Multi(pubs)
	return multi, hub, func() { _ = multi.Close() }
}

func startHubServer(ctx context.Context, wg *sync.WaitGroup, addr string, hub *events.Hub, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	srv := &http.Server{Addr: addr, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("event hub listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("hub server failed", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func cryptoSymbols(ctx context.Context, st store.Store) ([]string, error) {
	assets, err := st.Assets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	var symbols []string
	for _, a := range assets {
		if a.Type == store.AssetCrypto && a.Active {
			symbols = append(symbols, a.Symbol)
		}
	}
	return symbols, nil
}
