package smtp

import (
	"errors"
	"fmt"
	"strings"
)

// Security is how the connection to the SMTP server is protected.
type Security int

const (
	// StartTLS upgrades a plain connection, usually on port 587.
	StartTLS Security = iota
	// ImplicitTLS opens the connection over TLS, usually on port 465.
	ImplicitTLS
	// Plain sends without TLS. Only for local relays.
	Plain
)

// ServiceSMTP selects an explicitly configured host instead of a preset.
const ServiceSMTP = "smtp"

// Endpoint is a resolved SMTP server address.
type Endpoint struct {
	Host     string
	Port     int
	Security Security
}

var presets = map[string]Endpoint{
	"gmail":   {Host: "smtp.gmail.com", Port: 587, Security: StartTLS},
	"yandex":  {Host: "smtp.yandex.ru", Port: 465, Security: ImplicitTLS},
	"mailru":  {Host: "smtp.mail.ru", Port: 465, Security: ImplicitTLS},
	"outlook": {Host: "smtp.office365.com", Port: 587, Security: StartTLS},
}

// ErrUnknownService is returned for a MAIL_SERVICE with no preset.
var ErrUnknownService = errors.New("unknown mail service")

// Resolve maps the configured service to a server endpoint. For ServiceSMTP
// the host and port come from the config and port 465 implies implicit TLS.
func Resolve(cfg Config) (Endpoint, error) {
	service := strings.ToLower(strings.TrimSpace(cfg.Service))
	if service == ServiceSMTP {
		if cfg.Host == "" {
			return Endpoint{}, errors.New("smtp host is required")
		}
		if cfg.Port < 1 || cfg.Port > 65535 {
			return Endpoint{}, fmt.Errorf("invalid smtp port: %d", cfg.Port)
		}
		ep := Endpoint{Host: cfg.Host, Port: cfg.Port, Security: StartTLS}
		switch {
		case cfg.DisableTLS:
			ep.Security = Plain
		case cfg.Port == 465:
			ep.Security = ImplicitTLS
		}
		return ep, nil
	}

	ep, ok := presets[service]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownService, cfg.Service)
	}
	return ep, nil
}

// Services lists the preset names.
func Services() []string {
	return []string{"gmail", "yandex", "mailru", "outlook"}
}
