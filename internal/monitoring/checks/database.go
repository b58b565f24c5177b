package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/database"
	"github.com/charlesng35/doctracker/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database returns a probe that pings the database the reminder ledger lives in.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		return monitoring.ResultFromError(database.Ping(probeCtx, db), time.Since(start))
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
