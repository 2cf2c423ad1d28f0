package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPeriodicStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int64

	done := make(chan struct{})
	go func() {
		defer close(done)
		Periodic(ctx, zap.NewNop(), "test", time.Millisecond, func(context.Context) error {
			ticks.Add(1)
			return nil
		})
	}()

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 },
		time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestPeriodicSurvivesErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int64
	go Periodic(ctx, zap.NewNop(), "test", time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return errors.New("tick failed")
	})

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 },
		time.Second, time.Millisecond)
}

func TestPeriodicSurvivesPanics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int64
	go Periodic(ctx, zap.NewNop(), "test", time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		panic("tick exploded")
	})

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 },
		time.Second, time.Millisecond)
}
