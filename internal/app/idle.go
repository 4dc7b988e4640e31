package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/oxidux/oxidux/internal/events"
)

// DefaultSweepInterval is the idle sweeper's tick period (spec.md §4.2,
// "every 30s (tunable)").
const DefaultSweepInterval = 30 * time.Second

// MonitorIdleTimeout runs the background idle sweeper described in
// spec.md §4.2, driven off the shared event bus's Ticker rather than a
// private timer: every TickIdleSweep it reads the configured idle
// threshold, scans the registry, and stops-then-removes any app whose
// last_hit is older than the threshold. It returns when ctx is
// canceled.
func MonitorIdleTimeout(ctx context.Context, registry *Registry, bus *events.Bus, idleTimeout time.Duration, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	subID := bus.Subscribe(events.TickIdleSweep, func(events.Event) {
		sweepOnce(registry, idleTimeout, logger)
	})
	defer bus.Unsubscribe(subID)

	ticker := events.NewTicker(bus, interval)
	defer ticker.Stop()

	go func() {
		<-ctx.Done()
		close(done)
	}()
	<-done
}

// sweepOnce stops and removes every app idle longer than idleTimeout.
// Each removal acquires the registry's write lock separately (spec.md
// §4.2, "to minimize lock hold time") rather than holding it across the
// whole sweep.
func sweepOnce(registry *Registry, idleTimeout time.Duration, logger *slog.Logger) {
	apps, err := registry.List()
	if err != nil {
		logger.Warn("idle sweep: list apps failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-idleTimeout)
	for _, a := range apps {
		if a.LastHit().After(cutoff) {
			continue
		}
		logger.Info("idle sweep: stopping app", "app", a.Name, "last_hit", a.LastHit())
		if err := a.Stop(); err != nil {
			logger.Warn("idle sweep: stop failed", "app", a.Name, "error", err)
		}
		if err := registry.RemoveAppByName(a.Name); err != nil {
			logger.Warn("idle sweep: remove failed", "app", a.Name, "error", err)
		}
	}
}
