package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/doctracker/internal/reminders"
	"github.com/charlesng35/doctracker/pkg/crypto"
)

const jwtSecretBytes = 48

// ErrSchedulerSecretMissing is returned when hardened mode has no scheduler secret configured.
var ErrSchedulerSecretMissing = errors.New("config: reminders.cron_secret or reminders.cron_secret_hash is required in hardened mode")

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
// Hardened scheduler auth without a secret is a configuration error and is never papered over.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if cfg.ReminderAuthMode() == reminders.AuthHardened &&
		strings.TrimSpace(cfg.Reminders.CronSecret) == "" &&
		strings.TrimSpace(cfg.Reminders.CronSecretHash) == "" {
		return generated, ErrSchedulerSecretMissing
	}

	return generated, nil
}
