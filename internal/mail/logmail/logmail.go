// Package logmail provides a transport that only logs what would be sent.
package logmail

import (
	"context"
	"log/slog"

	"github.com/TON618OFF/FactorioStore/internal/domain"
)

// Transport logs messages and always succeeds. Used in development when no
// SMTP account is configured.
type Transport struct {
	logger *slog.Logger
}

// New creates a log-only transport.
func New(logger *slog.Logger) *Transport {
	return &Transport{logger: logger}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "log"
}

// Send logs the envelope and attachment sizes.
func (t *Transport) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	attrs := []any{
		slog.String("from", msg.From),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("attachments", len(msg.Attachments)),
	}
	for _, a := range msg.Attachments {
		attrs = append(attrs, slog.Group("attachment",
			slog.String("filename", a.Filename),
			slog.String("content_type", a.ContentType),
			slog.Int("size_bytes", len(a.Content)),
		))
	}

	t.logger.InfoContext(ctx, "log transport: message sent", attrs...)
	return nil
}
