package app

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TON618OFF/FactorioStore/internal/config"
	"github.com/TON618OFF/FactorioStore/internal/mail/logmail"
	"github.com/TON618OFF/FactorioStore/internal/mail/smtp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() *config.Config {
	return &config.Config{
		MailService:       "log",
		SMTPPort:          587,
		SMTPTLS:           true,
		MailTimeoutSecs:   15,
		CBMaxRequests:     1,
		CBIntervalSecs:    60,
		CBTimeoutSecs:     30,
		CBFailureRatio:    0.5,
		CBMinRequests:     5,
		RenderTimeoutSecs: 30,
	}
}

func TestNewTransport_Log(t *testing.T) {
	tr, err := NewTransport(baseConfig(), testLogger())
	require.NoError(t, err)
	assert.IsType(t, &logmail.Transport{}, tr)
}

func TestNewTransport_Preset(t *testing.T) {
	cfg := baseConfig()
	cfg.MailService = "Yandex"
	cfg.MailUser = "shop@example.ru"
	cfg.MailPass = "secret"

	tr, err := NewTransport(cfg, testLogger())
	require.NoError(t, err)

	st, ok := tr.(*smtp.Transport)
	require.True(t, ok)
	assert.Equal(t, smtp.Endpoint{Host: "smtp.yandex.ru", Port: 465, Security: smtp.ImplicitTLS}, st.Endpoint())
}

func TestNewTransport_ExplicitWithoutTLS(t *testing.T) {
	cfg := baseConfig()
	cfg.MailService = "smtp"
	cfg.SMTPHost = "mailhog"
	cfg.SMTPPort = 1025
	cfg.SMTPTLS = false

	tr, err := NewTransport(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, smtp.Plain, tr.(*smtp.Transport).Endpoint().Security)
}

func TestNewTransport_UnknownService(t *testing.T) {
	cfg := baseConfig()
	cfg.MailService = "pigeon"
	cfg.MailUser = "u"
	cfg.MailPass = "p"

	_, err := NewTransport(cfg, testLogger())
	assert.ErrorIs(t, err, smtp.ErrUnknownService)
}

func TestBreakerConfig(t *testing.T) {
	bc := BreakerConfig(baseConfig())

	assert.Equal(t, "smtp", bc.Name)
	assert.Equal(t, uint32(1), bc.MaxRequests)
	assert.Equal(t, time.Minute, bc.Interval)
	assert.Equal(t, 30*time.Second, bc.Timeout)
	assert.InDelta(t, 0.5, bc.FailureRatio, 1e-9)
	assert.Equal(t, uint32(5), bc.MinRequests)
}

func TestRendererConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.ChromeRemoteURL = "ws://chrome:9222/devtools/browser/abc"
	cfg.ChromeNoSandbox = true

	rc := RendererConfig(cfg)
	assert.Equal(t, "ws://chrome:9222/devtools/browser/abc", rc.RemoteURL)
	assert.True(t, rc.NoSandbox)
	assert.Equal(t, 30*time.Second, rc.Timeout)
}
