package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/charlesng35/doctracker/pkg/logger"
	"github.com/charlesng35/doctracker/pkg/mail"
	"github.com/charlesng35/doctracker/pkg/metrics"
)

// DeliveryConfig tunes outbound throttling and the circuit breaker.
type DeliveryConfig struct {
	RatePerSecond    float64
	Burst            int
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultDeliveryConfig returns conservative settings for a shared SMTP relay.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		RatePerSecond:    5,
		Burst:            5,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

const deliveryChannelEmail = "email"

// ResilientMailer wraps a Mailer with a token bucket and a circuit breaker so
// a failing relay is not hammered by every eligible document in a run.
type ResilientMailer struct {
	next    mail.Mailer
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewResilientMailer decorates next. Zero config values take defaults.
func NewResilientMailer(next mail.Mailer, cfg DeliveryConfig) *ResilientMailer {
	def := DefaultDeliveryConfig()
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}

	log := logger.WithModule("delivery")
	metrics.DeliveryBreakerState.WithLabelValues(deliveryChannelEmail).Set(0)

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        deliveryChannelEmail,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		IsSuccessful: func(err error) bool {
			return err == nil || mail.IsRecipientError(err)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.DeliveryBreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn("delivery circuit state changed",
				zap.String("channel", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &ResilientMailer{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker: breaker,
	}
}

// Send waits for a token and delivers through the breaker. A disabled relay
// and recipient-scoped rejections are returned without counting as breaker failures.
func (m *ResilientMailer) Send(ctx context.Context, msg mail.Message) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("delivery: rate limit wait: %w", err)
	}

	var disabled error
	_, err := m.breaker.Execute(func() (struct{}, error) {
		sendErr := m.next.Send(ctx, msg)
		if errors.Is(sendErr, mail.ErrSMTPDisabled) {
			disabled = sendErr
			return struct{}{}, nil
		}
		return struct{}{}, sendErr
	})
	if disabled != nil {
		return disabled
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("delivery: %s channel unavailable: %w", deliveryChannelEmail, err)
	}
	return err
}

// Verify checks the relay directly, bypassing throttling and the breaker.
func (m *ResilientMailer) Verify(ctx context.Context) error {
	return m.next.Verify(ctx)
}

// State reports the breaker state, e.g. "closed" or "open".
func (m *ResilientMailer) State() string {
	return m.breaker.State().String()
}
