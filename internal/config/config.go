package config

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	pkgconfig "github.com/TON618OFF/FactorioStore/pkg/config"
)

// MailServiceLog selects the log-only transport.
const MailServiceLog = "log"

// Config holds all configuration for the receipt service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// HTTP server
	HTTPPort           int `env:"RECEIPT_HTTP_PORT" envDefault:"8010"`
	HTTPRequestTimeout int `env:"RECEIPT_HTTP_TIMEOUT_SECONDS" envDefault:"60" validate:"gte=0"`

	// Kafka
	KafkaBrokers        []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	OrderTopic          string   `env:"RECEIPT_ORDER_TOPIC" envDefault:"ecommerce.order.created"`
	ConsumerGroup       string   `env:"RECEIPT_CONSUMER_GROUP" envDefault:"receipt-service"`
	ConsumerMaxAttempts int      `env:"RECEIPT_CONSUMER_MAX_ATTEMPTS" envDefault:"1" validate:"gte=1,lte=10"`
	DLQEnabled          bool     `env:"RECEIPT_DLQ_ENABLED" envDefault:"false"`
	EventsEnabled       bool     `env:"RECEIPT_EVENTS_ENABLED" envDefault:"true"`

	// Mail. Credentials come inline or from files mounted by a secret store.
	MailService     string `env:"MAIL_SERVICE" envDefault:"log"`
	MailUser        string `env:"MAIL_USER"`
	MailUserFile    string `env:"MAIL_USER_FILE,file"`
	MailPass        string `env:"MAIL_PASS"`
	MailPassFile    string `env:"MAIL_PASS_FILE,file"`
	MailFrom        string `env:"MAIL_FROM"`
	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPTLS         bool   `env:"SMTP_TLS" envDefault:"true"`
	MailTimeoutSecs int    `env:"MAIL_TIMEOUT_SECONDS" envDefault:"15" validate:"gte=1"`

	// SMTP circuit breaker
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBIntervalSecs int     `env:"CB_INTERVAL_SECONDS" envDefault:"60" validate:"gte=0"`
	CBTimeoutSecs  int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30" validate:"gte=1"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5" validate:"gt=0,lte=1"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Rendering
	ChromeRemoteURL   string `env:"CHROME_REMOTE_URL"`
	ChromeNoSandbox   bool   `env:"CHROME_NO_SANDBOX" envDefault:"false"`
	RenderTimeoutSecs int    `env:"RENDER_TIMEOUT_SECONDS" envDefault:"30" validate:"gte=1"`
	TimeZone          string `env:"RECEIPT_TIME_ZONE" envDefault:"Local"`

	// Delivery ledger (PostgreSQL)
	LedgerEnabled   bool   `env:"LEDGER_ENABLED" envDefault:"false"`
	PostgresHost    string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort    int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser    string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass    string `env:"POSTGRES_PASSWORD"`
	PostgresDB      string `env:"RECEIPT_DB_NAME" envDefault:"receipt_db"`
	PostgresSSL     string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns      int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns      int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	DBSlowQueryMS   int    `env:"DB_SLOW_QUERY_MS" envDefault:"200"`
	DBRunMigrations bool   `env:"DB_RUN_MIGRATIONS" envDefault:"true"`

	// Dedup
	DedupEnabled  bool   `env:"DEDUP_ENABLED" envDefault:"false"`
	DedupTTLHours int    `env:"DEDUP_TTL_HOURS" envDefault:"168" validate:"gte=1"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPass     string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load receipt config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks values that tags cannot express.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	service := strings.ToLower(c.MailService)
	if service == MailServiceLog {
		return nil
	}
	if c.SMTPUser() == "" || c.SMTPPassword() == "" {
		if service != "smtp" {
			return fmt.Errorf("MAIL_SERVICE=%s requires MAIL_USER/MAIL_PASS or their _FILE variants", c.MailService)
		}
	}
	if c.Sender() == "" {
		return fmt.Errorf("MAIL_FROM or MAIL_USER is required to send mail")
	}
	if _, err := mail.ParseAddress(c.Sender()); err != nil {
		return fmt.Errorf("invalid sender address %q: %w", c.Sender(), err)
	}
	if service == "smtp" && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required when MAIL_SERVICE=smtp")
	}
	return nil
}

// SMTPUser returns the mail account name, preferring the inline value.
func (c *Config) SMTPUser() string {
	return strings.TrimSpace(pkgconfig.FirstNonEmpty(c.MailUser, c.MailUserFile))
}

// SMTPPassword returns the mail account password, preferring the inline value.
func (c *Config) SMTPPassword() string {
	return strings.TrimSpace(pkgconfig.FirstNonEmpty(c.MailPass, c.MailPassFile))
}

// Sender is the From address. It defaults to the account name.
func (c *Config) Sender() string {
	return pkgconfig.FirstNonEmpty(c.MailFrom, c.SMTPUser())
}

// Location resolves RECEIPT_TIME_ZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid RECEIPT_TIME_ZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// DedupUsesRedis reports whether the dedup guard is shared through Redis.
func (c *Config) DedupUsesRedis() bool {
	return c.DedupEnabled && c.RedisAddr != ""
}

// Seconds converts a seconds setting to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
