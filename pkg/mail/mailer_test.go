package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"
)

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
	})
	if err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Fatalf("expected host validation error, got %v", err)
	}

	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("expected disabled configuration to succeed: %v", err)
	}

	if mailer == nil {
		t.Fatal("expected mailer to be returned")
	}
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"test@example.com"},
		Subject: "Test",
		Body:    "Hello",
	})
	if err != ErrSMTPDisabled {
		t.Fatalf("expected ErrSMTPDisabled, got %v", err)
	}
}

func TestFormatMessage(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	content := formatMessage(Message{
		From:    "from@example.com",
		To:      []string{"to@example.com"},
		Subject: "Passport\r\nexpires",
		Body:    "Body",
		Headers: map[string]string{
			"X-Reminder-Interval": "7",
			"Subject":             "spoofed",
		},
	}, now)

	if !strings.Contains(content, "From: from@example.com\r\n") {
		t.Fatalf("expected from header, got %q", content)
	}
	if !strings.Contains(content, "Subject: Passport  expires\r\n") {
		t.Fatalf("expected sanitised subject, got %q", content)
	}
	if strings.Contains(content, "spoofed") {
		t.Fatalf("reserved header must not be overridden: %q", content)
	}
	if !strings.Contains(content, "X-Reminder-Interval: 7\r\n") {
		t.Fatalf("expected custom header, got %q", content)
	}
	if !strings.Contains(content, "Date: Fri, 01 Mar 2024 09:00:00 +0000\r\n") {
		t.Fatalf("expected date header, got %q", content)
	}
	if !strings.Contains(content, "@example.com>\r\n") {
		t.Fatalf("expected message id scoped to sender domain, got %q", content)
	}
	if !strings.HasSuffix(content, "\r\n\r\nBody") {
		t.Fatalf("expected body after blank line, got %q", content)
	}
}

func TestEncodeHeaderNonASCII(t *testing.T) {
	encoded := encodeHeader("Reminder: Führerschein expires tomorrow")
	if !strings.HasPrefix(encoded, "=?UTF-8?q?") {
		t.Fatalf("expected RFC 2047 encoding, got %q", encoded)
	}
	if plain := encodeHeader("Reminder: Passport"); plain != "Reminder: Passport" {
		t.Fatalf("ascii header should pass through, got %q", plain)
	}
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
		UseTLS:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	sm, ok := mailer.(*smtpMailer)
	if !ok {
		t.Fatalf("expected smtpMailer type")
	}

	if sm.cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to be assigned")
	}

	if sm.cfg.Timeout != 10*time.Second {
		t.Fatalf("expected timeout to be 10s, got %v", sm.cfg.Timeout)
	}
}

func TestSMTPMailerSendRequiresRecipients(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"   ", "\t"},
		Subject: "No recipients",
		Body:    "Body",
	})
	if err == nil || !strings.Contains(err.Error(), "at least one recipient") {
		t.Fatalf("expected missing recipient error, got %v", err)
	}
}

func TestSMTPMailerSendValidatesFromAddress(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		From: "invalid-from",
		To:   []string{"user@example.com"},
	})
	if err == nil || !strings.Contains(err.Error(), "invalid from address") {
		t.Fatalf("expected invalid from error, got %v", err)
	}
}

func TestSMTPMailerSendValidatesRecipientAddresses(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To: []string{"user@example.com", "bad-address"},
	})
	if err == nil || !strings.Contains(err.Error(), "invalid recipient address") {
		t.Fatalf("expected invalid recipient error, got %v", err)
	}
}

func TestUniqueAddresses(t *testing.T) {
	addresses := []string{"alice@example.com", "bob@example.com", " alice@example.com ", "", "BOB@example.com"}
	result := uniqueAddresses(addresses)
	if len(result) != 2 {
		t.Fatalf("expected 2 unique addresses, got %d: %v", len(result), result)
	}
	if result[0] != "alice@example.com" || result[1] != "bob@example.com" {
		t.Fatalf("unexpected result order/content: %v", result)
	}
}

type recordingClient struct {
	from    string
	rcpts   []string
	data    bytes.Buffer
	noops   int
	quit    bool
	closed  bool
	noopErr error
	rcptErr error
}

func (c *recordingClient) Mail(from string) error { c.from = from; return nil }
func (c *recordingClient) Rcpt(to string) error {
	c.rcpts = append(c.rcpts, to)
	return c.rcptErr
}
func (c *recordingClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&c.data}, nil
}
func (c *recordingClient) Noop() error                      { c.noops++; return c.noopErr }
func (c *recordingClient) Quit() error                      { c.quit = true; return nil }
func (c *recordingClient) Close() error                     { c.closed = true; return nil }
func (c *recordingClient) StartTLS(*tls.Config) error       { return nil }
func (c *recordingClient) Auth(smtp.Auth) error             { return nil }
func (c *recordingClient) Extension(string) (bool, string) { return false, "" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newRecordingMailer(t *testing.T, client *recordingClient) *smtpMailer {
	t.Helper()
	m, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "reminders@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}
	sm := m.(*smtpMailer)
	sm.dialFn = func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
		server, clientConn := net.Pipe()
		t.Cleanup(func() { _ = server.Close() })
		return clientConn, client, nil
	}
	sm.authFn = func(smtpClient, SMTPSettings) error { return nil }
	return sm
}

func TestSMTPMailerSendWritesMessage(t *testing.T) {
	client := &recordingClient{}
	mailer := newRecordingMailer(t, client)

	err := mailer.Send(context.Background(), Message{
		To:      []string{"owner@example.com", "owner@example.com"},
		Subject: "Passport expires in 7 days",
		Body:    "Renew soon.",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if client.from != "reminders@example.com" {
		t.Fatalf("expected default sender, got %q", client.from)
	}
	if len(client.rcpts) != 1 {
		t.Fatalf("expected de-duplicated recipients, got %v", client.rcpts)
	}
	if !strings.Contains(client.data.String(), "Subject: Passport expires in 7 days") {
		t.Fatalf("expected subject header in %q", client.data.String())
	}
	if !client.quit || !client.closed {
		t.Fatal("expected session to be closed")
	}
}

func TestSMTPMailerClassifiesRecipientRejections(t *testing.T) {
	permanent := &recordingClient{rcptErr: &textproto.Error{Code: 550, Msg: "mailbox unavailable"}}
	mailer := newRecordingMailer(t, permanent)
	err := mailer.Send(context.Background(), Message{To: []string{"gone@example.com"}, Subject: "s", Body: "b"})
	if !IsRecipientError(err) {
		t.Fatalf("expected recipient error for 550, got %v", err)
	}
	var rcptErr *RecipientError
	if !errors.As(err, &rcptErr) || rcptErr.Address != "gone@example.com" {
		t.Fatalf("expected rejected address on error, got %v", err)
	}

	transient := &recordingClient{rcptErr: &textproto.Error{Code: 451, Msg: "try again later"}}
	mailer = newRecordingMailer(t, transient)
	err = mailer.Send(context.Background(), Message{To: []string{"busy@example.com"}, Subject: "s", Body: "b"})
	if err == nil || IsRecipientError(err) {
		t.Fatalf("expected relay error for 451, got %v", err)
	}

	mailer = newRecordingMailer(t, &recordingClient{})
	err = mailer.Send(context.Background(), Message{To: []string{"bad-address"}})
	if !IsRecipientError(err) {
		t.Fatalf("expected malformed address to be a recipient error, got %v", err)
	}
}

func TestSMTPMailerVerify(t *testing.T) {
	client := &recordingClient{}
	mailer := newRecordingMailer(t, client)

	if err := mailer.Verify(context.Background()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if client.noops != 1 {
		t.Fatalf("expected one NOOP, got %d", client.noops)
	}
	if client.from != "" {
		t.Fatal("verify must not start a mail transaction")
	}

	failing := &recordingClient{noopErr: errors.New("421 closing")}
	mailer = newRecordingMailer(t, failing)
	if err := mailer.Verify(context.Background()); err == nil || !strings.Contains(err.Error(), "noop") {
		t.Fatalf("expected noop error, got %v", err)
	}
}

func TestSMTPMailerSendHonoursCancelledContext(t *testing.T) {
	client := &recordingClient{}
	mailer := newRecordingMailer(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mailer.Send(ctx, Message{To: []string{"owner@example.com"}, Subject: "s", Body: "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.from != "" {
		t.Fatal("cancelled send must not reach the relay")
	}
}

func TestSMTPMailerVerifyDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mailer.Verify(context.Background()); err != ErrSMTPDisabled {
		t.Fatalf("expected ErrSMTPDisabled, got %v", err)
	}
}
