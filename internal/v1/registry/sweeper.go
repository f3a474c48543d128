package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gauravbhatia4601/meet/internal/v1/logging"
)

// StartSweeper runs the idle-room sweep on a fixed interval until the context
// is cancelled. The sweep itself is serialised against registry mutations by
// the registry and room locks; this goroutine only provides the timer.
func (reg *Registry) StartSweeper(ctx context.Context, interval, idleFor time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logging.Info(ctx, "Idle sweeper started",
			zap.Duration("interval", interval), zap.Duration("idleThreshold", idleFor))

		for {
			select {
			case <-ctx.Done():
				logging.Info(ctx, "Idle sweeper stopped")
				return
			case <-ticker.C:
				if swept := reg.Sweep(idleFor); len(swept) > 0 {
					logging.Info(ctx, "Sweep completed", zap.Int("roomsSwept", len(swept)))
				}
			}
		}
	}()
}
