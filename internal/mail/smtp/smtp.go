// Package smtp delivers receipt messages through an SMTP relay.
package smtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/TON618OFF/FactorioStore/internal/domain"
	"github.com/TON618OFF/FactorioStore/pkg/breaker"
)

const defaultTimeout = 15 * time.Second

// Config holds SMTP account settings. Username and Password are loaded from
// the environment or a mounted secret file and never logged.
type Config struct {
	Service    string
	Host       string
	Port       int
	Username   string
	Password   string
	DisableTLS bool
	Timeout    time.Duration
	Breaker    breaker.Config
}

// Transport sends messages with go-mail. Each send dials its own connection,
// so one Transport is safe to share.
type Transport struct {
	endpoint Endpoint
	username string
	password string
	timeout  time.Duration
	breaker  *breaker.Breaker
	logger   *slog.Logger
}

// New resolves the endpoint and builds the transport. Presets require
// credentials; an explicit relay may run without auth.
func New(cfg Config, logger *slog.Logger) (*Transport, error) {
	cfg.Service = strings.ToLower(strings.TrimSpace(cfg.Service))
	ep, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Service != ServiceSMTP && (cfg.Username == "" || cfg.Password == "") {
		return nil, fmt.Errorf("mail service %s requires MAIL_USER and MAIL_PASS", cfg.Service)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = breaker.DefaultConfig("smtp")
	}

	return &Transport{
		endpoint: ep,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.Timeout,
		breaker:  breaker.New(cfg.Breaker, logger, breaker.WithSuccessClassifier(isNotServerFault)),
		logger:   logger,
	}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

// Endpoint returns the resolved server.
func (t *Transport) Endpoint() Endpoint {
	return t.endpoint
}

// Send delivers msg. A rejected message is returned as is; while the breaker
// is open the call fails fast with breaker.ErrOpen.
func (t *Transport) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	m, err := buildMessage(msg)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	err = t.breaker.Do(ctx, func(ctx context.Context) error {
		client, err := t.newClient()
		if err != nil {
			return err
		}
		return client.DialAndSendWithContext(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("smtp send via %s:%d: %w", t.endpoint.Host, t.endpoint.Port, err)
	}

	t.logger.DebugContext(ctx, "smtp message accepted",
		slog.String("host", t.endpoint.Host),
		slog.String("subject", msg.Subject),
	)
	return nil
}

func (t *Transport) newClient() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(t.endpoint.Port),
		gomail.WithTimeout(t.timeout),
	}
	switch t.endpoint.Security {
	case ImplicitTLS:
		opts = append(opts, gomail.WithSSL())
	case StartTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	case Plain:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if t.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.username),
			gomail.WithPassword(t.password),
		)
	}

	client, err := gomail.NewClient(t.endpoint.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return client, nil
}

func buildMessage(msg *domain.OutboundMessage) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	for _, a := range msg.Attachments {
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Content),
			gomail.WithFileContentType(gomail.ContentType(a.ContentType)),
		); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}
	return m, nil
}

// isNotServerFault keeps the breaker closed for failures that say nothing
// about the relay's health: a canceled caller or a permanently rejected
// recipient.
func isNotServerFault(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) {
		return sendErr.Reason == gomail.ErrSMTPRcptTo && !sendErr.IsTemp()
	}
	return false
}
