package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/doctracker/pkg/crypto"
)

func TestApplyRuntimeDefaultsGeneratesJWTSecret(t *testing.T) {
	cfg := &Config{}
	cfg.Reminders.CronSecret = "s3cret"

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Auth.JWT.Secret)
	require.True(t, generated["auth.jwt.secret"])
}

func TestApplyRuntimeDefaultsPreservesExistingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = strings.Repeat("a", 10)
	hash, err := crypto.HashSecret("s3cret")
	require.NoError(t, err)
	cfg.Reminders.CronSecretHash = hash

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, strings.Repeat("a", 10), cfg.Auth.JWT.Secret)
}

func TestApplyRuntimeDefaultsRequiresSchedulerSecretWhenHardened(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Mode = ModeProduction

	_, err := ApplyRuntimeDefaults(cfg)
	require.ErrorIs(t, err, ErrSchedulerSecretMissing)

	cfg.Server.Mode = ModeDevelopment
	_, err = ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.ErrorContains(t, err, "config is nil")
}
