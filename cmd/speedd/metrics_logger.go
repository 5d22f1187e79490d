package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/halvorsen/speedd/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"connections", snap.Connections,
					"active_connections", snap.ActiveConns,
					"cameras", snap.Cameras,
					"dispatchers", snap.Dispatchers,
					"observations", snap.Observations,
					"tickets_issued", snap.Issued,
					"tickets_deduped", snap.Deduped,
					"pending_tickets", snap.Pending,
					"heartbeats", snap.Heartbeats,
					"rate_limited", snap.RateLimited,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
