package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrSMTPDisabled signals that SMTP delivery is disabled via configuration.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

const defaultSMTPTimeout = 10 * time.Second

// RecipientError reports a fault tied to one recipient address, such as a
// malformed address or a permanent rejection at RCPT. The relay itself is healthy.
type RecipientError struct {
	Address string
	Err     error
}

func (e *RecipientError) Error() string {
	return e.Err.Error()
}

func (e *RecipientError) Unwrap() error {
	return e.Err
}

// IsRecipientError reports whether err is scoped to a single recipient.
func IsRecipientError(err error) bool {
	var rcptErr *RecipientError
	return errors.As(err, &rcptErr)
}

// Message represents an outbound plain-text email. Headers carries extra
// X- headers; reserved headers such as From or Subject are ignored there.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
	Headers map[string]string
}

// Mailer sends email messages and can check that the relay is reachable.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Verify(ctx context.Context) error
}

// SMTPSettings capture the runtime configuration required by the SMTP mailer.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

func (s SMTPSettings) address() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

func (s SMTPSettings) validate() error {
	if !s.Enabled {
		return nil
	}
	switch {
	case strings.TrimSpace(s.Host) == "":
		return errors.New("smtp: host is required when enabled")
	case s.Port == 0:
		return errors.New("smtp: port is required when enabled")
	}
	return nil
}

type smtpClient interface {
	Mail(string) error
	Rcpt(string) error
	Data() (io.WriteCloser, error)
	Noop() error
	Quit() error
	Close() error
	StartTLS(*tls.Config) error
	Auth(smtp.Auth) error
	Extension(string) (bool, string)
}

type smtpDialFunc func(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error)
type smtpAuthFunc func(client smtpClient, cfg SMTPSettings) error

type smtpMailer struct {
	cfg    SMTPSettings
	dialFn smtpDialFunc
	authFn smtpAuthFunc
	now    func() time.Time
}

// NewSMTPMailer builds a Mailer backed by net/smtp. A disabled configuration
// yields a mailer whose operations return ErrSMTPDisabled.
func NewSMTPMailer(cfg SMTPSettings) (Mailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &smtpMailer{
		cfg:    cfg,
		dialFn: defaultDialFunc,
		authFn: defaultAuthFunc,
		now:    time.Now,
	}, nil
}

// envelope is a validated message ready for the MAIL/RCPT/DATA exchange.
type envelope struct {
	from       string
	recipients []string
	payload    string
}

func (m *smtpMailer) prepare(msg Message) (envelope, error) {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return envelope{}, errors.New("smtp: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.cfg.From
	}
	if from == "" {
		return envelope{}, errors.New("smtp: sender address is required")
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return envelope{}, fmt.Errorf("smtp: invalid from address: %w", err)
	}
	for _, rcpt := range recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return envelope{}, &RecipientError{
				Address: rcpt,
				Err:     fmt.Errorf("smtp: invalid recipient address %q: %w", rcpt, err),
			}
		}
	}

	msg.From = from
	msg.To = recipients
	return envelope{
		from:       from,
		recipients: recipients,
		payload:    formatMessage(msg, m.now()),
	}, nil
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}

	env, err := m.prepare(msg)
	if err != nil {
		return err
	}

	return m.session(ctx, func(client smtpClient) error {
		if err := client.Mail(env.from); err != nil {
			return fmt.Errorf("smtp: mail from: %w", err)
		}
		for _, rcpt := range env.recipients {
			if err := client.Rcpt(rcpt); err != nil {
				err = fmt.Errorf("smtp: rcpt to %s: %w", rcpt, err)
				if permanentReply(err) {
					return &RecipientError{Address: rcpt, Err: err}
				}
				return err
			}
		}

		wc, err := client.Data()
		if err != nil {
			return fmt.Errorf("smtp: data command: %w", err)
		}
		if _, err := io.WriteString(wc, env.payload); err != nil {
			_ = wc.Close()
			return fmt.Errorf("smtp: write body: %w", err)
		}
		if err := wc.Close(); err != nil {
			return fmt.Errorf("smtp: close data writer: %w", err)
		}
		return nil
	})
}

// Verify dials the relay, authenticates and issues a NOOP without sending mail.
func (m *smtpMailer) Verify(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}
	if strings.TrimSpace(m.cfg.From) == "" {
		return errors.New("smtp: sender address is required")
	}

	return m.session(ctx, func(client smtpClient) error {
		if err := client.Noop(); err != nil {
			return fmt.Errorf("smtp: noop: %w", err)
		}
		return nil
	})
}

// session opens an authenticated connection, runs fn and quits. The context
// deadline, when present, bounds the whole exchange.
func (m *smtpMailer) session(ctx context.Context, fn func(smtpClient) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, client, err := m.dialFn(ctx, m.cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer client.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := m.authFn(client, m.cfg); err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return err
	}
	return client.Quit()
}

// permanentReply reports a 5xx SMTP reply. 4xx replies are transient relay conditions.
func permanentReply(err error) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code >= 500 && protoErr.Code < 600
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, addr)
	}
	return result
}

func defaultDialFunc(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error) {
	address := cfg.address()
	dialer := &net.Dialer{Timeout: cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if cfg.UseTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: cfg.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("smtp: dial %s: %w", address, err)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("smtp: new client: %w", err)
	}

	if !cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				_ = client.Close()
				_ = conn.Close()
				return nil, nil, fmt.Errorf("smtp: start tls: %w", err)
			}
		}
	}

	return conn, client, nil
}

func defaultAuthFunc(client smtpClient, cfg SMTPSettings) error {
	if strings.TrimSpace(cfg.Username) == "" {
		return nil
	}
	if ok, _ := client.Extension("AUTH"); !ok {
		return errors.New("smtp: relay does not support AUTH")
	}
	if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
		return fmt.Errorf("smtp: auth: %w", err)
	}
	return nil
}

var reservedHeaders = map[string]struct{}{
	"from": {}, "to": {}, "subject": {}, "date": {}, "message-id": {},
	"mime-version": {}, "content-type": {}, "content-transfer-encoding": {},
}

func formatMessage(msg Message, now time.Time) string {
	var b strings.Builder
	writeHeader := func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	writeHeader("From", msg.From)
	writeHeader("To", strings.Join(msg.To, ", "))
	writeHeader("Subject", encodeHeader(msg.Subject))
	writeHeader("Date", now.UTC().Format(time.RFC1123Z))
	writeHeader("Message-ID", messageID(msg.From))

	names := make([]string, 0, len(msg.Headers))
	for name := range msg.Headers {
		if _, reserved := reservedHeaders[strings.ToLower(strings.TrimSpace(name))]; reserved {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeHeader(sanitizeHeader(name), encodeHeader(msg.Headers[name]))
	}

	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", "text/plain; charset=UTF-8")
	writeHeader("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.String()
}

func messageID(from string) string {
	domain := "localhost"
	if addr, err := mail.ParseAddress(from); err == nil {
		if at := strings.LastIndex(addr.Address, "@"); at >= 0 && at < len(addr.Address)-1 {
			domain = addr.Address[at+1:]
		}
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// encodeHeader strips line breaks and applies RFC 2047 encoding to non-ASCII values.
func encodeHeader(value string) string {
	value = sanitizeHeader(value)
	for _, r := range value {
		if r > 127 {
			return mime.QEncoding.Encode("UTF-8", value)
		}
	}
	return value
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}
