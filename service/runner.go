// Package service hosts the background loops: price refresh, trigger sweep,
// and portfolio snapshots. The loops are independent and crash-isolated;
// one bad tick is logged and the loop keeps going.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Periodic runs fn every interval until ctx is cancelled. The current tick
// is allowed to finish on cancellation; a panic or error inside a tick is
// contained and logged, never fatal to the loop.
func Periodic(ctx context.Context, logger *zap.Logger, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("loop started", zap.String("loop", name), zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("loop stopped", zap.String("loop", name))
			return
		case <-ticker.C:
			if err := runTick(ctx, fn); err != nil {
				logger.Error("loop tick failed", zap.String("loop", name), zap.Error(err))
			}
		}
	}
}

func runTick(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return fn(ctx)
}
