package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/doctracker/internal/reminders"
)

// ReminderAuthMode resolves the effective scheduler auth mode. An explicit
// setting wins; otherwise production runs hardened and development permissive.
func (c *Config) ReminderAuthMode() reminders.AuthMode {
	switch mode := reminders.AuthMode(strings.ToLower(strings.TrimSpace(c.Reminders.AuthMode))); mode {
	case reminders.AuthHardened, reminders.AuthPermissive:
		return mode
	}
	if c.Server.Production() {
		return reminders.AuthHardened
	}
	return reminders.AuthPermissive
}

// ReminderAuthConfig converts the scheduler secret settings.
func (c *Config) ReminderAuthConfig() reminders.AuthConfig {
	return reminders.AuthConfig{
		Mode:       c.ReminderAuthMode(),
		Secret:     c.Reminders.CronSecret,
		SecretHash: c.Reminders.CronSecretHash,
	}
}

// EngineConfig converts RemindersConfig into engine parameters.
func (c RemindersConfig) EngineConfig() (reminders.EngineConfig, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		loaded, err := time.LoadLocation(tz)
		if err != nil {
			return reminders.EngineConfig{}, fmt.Errorf("reminders.timezone: %w", err)
		}
		loc = loaded
	}

	return reminders.EngineConfig{
		HorizonDays: c.HorizonDays,
		Location:    loc,
		Parallelism: c.Parallelism,
		RunLockTTL:  c.RunLockTTL,
		AppURL:      strings.TrimSpace(c.Delivery.AppURL),
	}, nil
}

// DeliveryConfig converts delivery settings into the resilient mailer configuration.
func (c RemindersConfig) DeliveryConfig() reminders.DeliveryConfig {
	cfg := reminders.DefaultDeliveryConfig()
	if c.Delivery.RatePerSecond > 0 {
		cfg.RatePerSecond = c.Delivery.RatePerSecond
	}
	if c.Delivery.Burst > 0 {
		cfg.Burst = c.Delivery.Burst
	}
	if c.Delivery.BreakerThreshold > 0 {
		cfg.FailureThreshold = c.Delivery.BreakerThreshold
	}
	if c.Delivery.BreakerTimeout > 0 {
		cfg.Timeout = c.Delivery.BreakerTimeout
	}
	if c.Delivery.BreakerInterval > 0 {
		cfg.Interval = c.Delivery.BreakerInterval
	}
	return cfg
}

// LedgerRetention returns how long dispatch ledger rows are kept. Zero disables purging.
func (c RemindersConfig) LedgerRetention() time.Duration {
	if c.LedgerRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.LedgerRetentionDays) * 24 * time.Hour
}
