package checks

import (
	"context"
	"time"

	"github.com/charlesng35/doctracker/internal/monitoring"
)

const defaultCacheTimeout = 2 * time.Second

// Pinger is the minimal interface required to probe a cache backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache returns a probe for the store holding the run lock and rate limit
// counters. backend names the implementation in the report details.
func Cache(store Pinger, backend string, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("cache", func(ctx context.Context) monitoring.ProbeResult {
		if store == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "cache not configured"}
		}

		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultCacheTimeout))
		defer cancel()

		result := monitoring.ResultFromError(store.Ping(probeCtx), time.Since(start))
		if result.Details == "" {
			result.Details = backend
		}
		return result
	})
}
