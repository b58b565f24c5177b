package reminders

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/charlesng35/doctracker/pkg/crypto"
	apperrors "github.com/charlesng35/doctracker/pkg/errors"
)

// AuthMode selects how scheduler requests are authorised.
type AuthMode string

const (
	// AuthHardened requires the shared scheduler secret on every request.
	AuthHardened AuthMode = "hardened"
	// AuthPermissive skips the check. Intended for local development only.
	AuthPermissive AuthMode = "permissive"
)

// SecretHeader carries the scheduler secret when no Authorization header is used.
const SecretHeader = "x-cron-secret"

// AuthConfig configures the Authorizer. SecretHash, a bcrypt hash, takes
// precedence over the plaintext Secret when both are set.
type AuthConfig struct {
	Mode       AuthMode
	Secret     string
	SecretHash string
}

// Authorizer validates the scheduler secret presented by a trigger.
type Authorizer struct {
	cfg AuthConfig
}

// NewAuthorizer validates cfg and returns an Authorizer.
func NewAuthorizer(cfg AuthConfig) (*Authorizer, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = AuthHardened
	case AuthHardened, AuthPermissive:
	default:
		return nil, fmt.Errorf("reminders: unknown auth mode %q", cfg.Mode)
	}
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	cfg.SecretHash = strings.TrimSpace(cfg.SecretHash)
	if cfg.SecretHash != "" && !crypto.IsBcryptHash(cfg.SecretHash) {
		return nil, fmt.Errorf("reminders: secret hash is not a bcrypt hash")
	}
	return &Authorizer{cfg: cfg}, nil
}

// Mode returns the configured mode.
func (a *Authorizer) Mode() AuthMode {
	return a.cfg.Mode
}

// Configured reports whether a secret is available for hardened mode.
func (a *Authorizer) Configured() bool {
	return a.cfg.Secret != "" || a.cfg.SecretHash != ""
}

// Authorize checks a presented secret. Hardened mode without a configured
// secret rejects everything.
func (a *Authorizer) Authorize(presented string) error {
	if a == nil || a.cfg.Mode == AuthPermissive {
		return nil
	}
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return apperrors.ErrUnauthorized
	}

	var ok bool
	switch {
	case a.cfg.SecretHash != "":
		ok = crypto.VerifySecret(a.cfg.SecretHash, presented)
	case a.cfg.Secret != "":
		ok = crypto.SecretsEqual(a.cfg.Secret, presented)
	}
	if !ok {
		return apperrors.ErrUnauthorized
	}
	return nil
}

// SecretFromHeader extracts the presented secret, preferring the dedicated
// header over an Authorization bearer token.
func SecretFromHeader(h http.Header) string {
	if v := strings.TrimSpace(h.Get(SecretHeader)); v != "" {
		return v
	}
	return BearerToken(h)
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
func BearerToken(h http.Header) string {
	parts := strings.SplitN(strings.TrimSpace(h.Get("Authorization")), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
