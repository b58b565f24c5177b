package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/doctracker/pkg/mail"
)

type stubMailer struct {
	err   error
	calls int
}

func (s *stubMailer) Send(context.Context, mail.Message) error {
	s.calls++
	return s.err
}

func (s *stubMailer) Verify(context.Context) error { return s.err }

func testDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		RatePerSecond:    1000,
		Burst:            100,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Hour,
		FailureThreshold: 3,
	}
}

func TestResilientMailerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &stubMailer{err: errors.New("421 service not available")}
	m := NewResilientMailer(next, testDeliveryConfig())
	msg := mail.Message{To: []string{"a@example.com"}, Subject: "s", Body: "b"}

	for i := 0; i < 3; i++ {
		require.Error(t, m.Send(context.Background(), msg))
	}
	require.Equal(t, "open", m.State())

	err := m.Send(context.Background(), msg)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, 3, next.calls, "open breaker short-circuits the relay")
}

func TestResilientMailerDisabledRelayDoesNotTrip(t *testing.T) {
	next := &stubMailer{err: mail.ErrSMTPDisabled}
	m := NewResilientMailer(next, testDeliveryConfig())

	for i := 0; i < 5; i++ {
		require.ErrorIs(t, m.Send(context.Background(), mail.Message{To: []string{"a@example.com"}}), mail.ErrSMTPDisabled)
	}
	require.Equal(t, "closed", m.State())
	require.Equal(t, 5, next.calls)
}

func TestResilientMailerRecipientFaultsDoNotTrip(t *testing.T) {
	cfg := testDeliveryConfig()
	relay, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "reminders@example.com",
	})
	require.NoError(t, err)
	m := NewResilientMailer(relay, cfg)

	for i := 0; i < 5; i++ {
		err := m.Send(context.Background(), mail.Message{To: []string{"not-an-address"}, Subject: "s", Body: "b"})
		require.ErrorContains(t, err, "invalid recipient address")
		require.True(t, mail.IsRecipientError(err))
	}
	require.Equal(t, "closed", m.State())
}

func TestResilientMailerKeepsDeliveringAfterRejectedRecipients(t *testing.T) {
	rejected := &mail.RecipientError{Address: "gone@example.com", Err: errors.New("550 mailbox unavailable")}
	next := &stubMailer{err: rejected}
	m := NewResilientMailer(next, testDeliveryConfig())
	msg := mail.Message{To: []string{"gone@example.com"}, Subject: "s", Body: "b"}

	for i := 0; i < 5; i++ {
		require.ErrorIs(t, m.Send(context.Background(), msg), rejected)
	}
	require.Equal(t, "closed", m.State())

	next.err = nil
	require.NoError(t, m.Send(context.Background(), mail.Message{To: []string{"alice@example.com"}}))
	require.Equal(t, 6, next.calls)
}

func TestResilientMailerHonoursContextWhileThrottled(t *testing.T) {
	cfg := testDeliveryConfig()
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	m := NewResilientMailer(&stubMailer{}, cfg)

	require.NoError(t, m.Send(context.Background(), mail.Message{To: []string{"a@example.com"}}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, m.Send(ctx, mail.Message{To: []string{"a@example.com"}}))
}

func TestResilientMailerVerifyPassesThrough(t *testing.T) {
	next := &stubMailer{err: errors.New("dial failed")}
	m := NewResilientMailer(next, DeliveryConfig{})
	require.EqualError(t, m.Verify(context.Background()), "dial failed")
}
