package cmd

import (
	"context"
	"fmt"

	"github.com/zenithtrade/papertrader/config"
	"github.com/zenithtrade/papertrader/store"
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}

// openStore builds the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DSN)
	default:
		return store.NewSQLite(cfg.Store.Path)
	}
}

func openStoreFromFlag(ctx context.Context, configPath string) (store.Store, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, func() { _ = st.Close() }, nil
}
