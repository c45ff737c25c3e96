package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/TON618OFF/FactorioStore/internal/config"
	"github.com/TON618OFF/FactorioStore/internal/event"
	handler "github.com/TON618OFF/FactorioStore/internal/handler/http"
	"github.com/TON618OFF/FactorioStore/internal/mail"
	"github.com/TON618OFF/FactorioStore/internal/mail/logmail"
	"github.com/TON618OFF/FactorioStore/internal/mail/smtp"
	"github.com/TON618OFF/FactorioStore/internal/receipt/chromedp"
	"github.com/TON618OFF/FactorioStore/internal/repository"
	"github.com/TON618OFF/FactorioStore/internal/repository/postgres"
	"github.com/TON618OFF/FactorioStore/internal/repository/redis"
	"github.com/TON618OFF/FactorioStore/internal/service"
	"github.com/TON618OFF/FactorioStore/pkg/breaker"
	"github.com/TON618OFF/FactorioStore/pkg/database"
	"github.com/TON618OFF/FactorioStore/pkg/health"
	pkgkafka "github.com/TON618OFF/FactorioStore/pkg/kafka"
	"github.com/TON618OFF/FactorioStore/pkg/tracing"
)

// Version is stamped at build time.
var Version = "dev"

// App wires together all dependencies and runs the receipt service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	renderer       *chromedp.Renderer
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumer       *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	shutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracerShutdown = shutdown

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	transport, err := NewTransport(cfg, logger)
	if err != nil {
		return fmt.Errorf("init mail transport: %w", err)
	}
	logger.Info("mail transport ready", slog.String("transport", transport.Name()), slog.String("service", cfg.MailService))

	a.renderer = chromedp.New(RendererConfig(cfg), logger)

	healthHandler := health.NewHandler()
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
	})
	if cfg.ChromeRemoteURL != "" {
		healthHandler.Register("chrome", a.renderer.Ping)
	}

	opts := []service.Option{service.WithLocation(loc)}

	ledger, err := a.initLedger(ctx, healthHandler)
	if err != nil {
		return err
	}
	opts = append(opts, service.WithLedger(ledger))

	if cfg.EventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		opts = append(opts, service.WithEvents(event.NewProducer(a.producer, logger)))
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	dispatcher := service.NewDispatcher(a.renderer, transport, cfg.Sender(), logger, opts...)

	settings := event.ConsumerSettings{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.ConsumerGroup,
		Topic:       cfg.OrderTopic,
		MaxAttempts: cfg.ConsumerMaxAttempts,
	}
	if settings.Dedup, err = a.initDedup(ctx, healthHandler); err != nil {
		return err
	}
	if cfg.DLQEnabled {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		settings.DeadLetter = a.dlq
	}
	a.consumer = event.NewConsumer(settings, event.NewConsumerHandler(dispatcher, logger), logger)

	router := handler.NewRouter(dispatcher, healthHandler, logger, config.Seconds(cfg.HTTPRequestTimeout))
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      config.Seconds(cfg.HTTPRequestTimeout) + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return nil
}

func (a *App) initLedger(ctx context.Context, hh *health.Handler) (repository.AttemptRepository, error) {
	cfg := a.cfg
	if !cfg.LedgerEnabled {
		return repository.NoopAttemptRepository{}, nil
	}

	pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if cfg.DBRunMigrations {
		if err := database.RunMigrations(ctx, pool, postgres.Migrations(), a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, handler.ServiceName); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}
	hh.Register("postgres", pool.Ping)

	tracer := database.QueryTracer{
		SlowThreshold: time.Duration(cfg.DBSlowQueryMS) * time.Millisecond,
		Logger:        a.logger,
	}
	return postgres.NewAttemptRepository(pool, tracer), nil
}

func (a *App) initDedup(ctx context.Context, hh *health.Handler) (pkgkafka.IdempotencyStore, error) {
	cfg := a.cfg
	if !cfg.DedupEnabled {
		return nil, nil
	}
	ttl := time.Duration(cfg.DedupTTLHours) * time.Hour

	if !cfg.DedupUsesRedis() {
		a.logger.Info("receipt dedup enabled", slog.String("store", "memory"), slog.Duration("ttl", ttl))
		return pkgkafka.NewMemoryIdempotencyStore(ttl), nil
	}

	client, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	hh.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	a.logger.Info("receipt dedup enabled", slog.String("store", "redis"), slog.String("addr", cfg.RedisAddr))
	return redis.NewDedupStore(client, ttl), nil
}

// NewTransport picks the mail transport for MAIL_SERVICE.
func NewTransport(cfg *config.Config, logger *slog.Logger) (mail.Transport, error) {
	if strings.EqualFold(cfg.MailService, config.MailServiceLog) {
		return logmail.New(logger), nil
	}
	return smtp.New(smtp.Config{
		Service:    strings.ToLower(cfg.MailService),
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		Username:   cfg.SMTPUser(),
		Password:   cfg.SMTPPassword(),
		DisableTLS: !cfg.SMTPTLS,
		Timeout:    config.Seconds(cfg.MailTimeoutSecs),
		Breaker:    BreakerConfig(cfg),
	}, logger)
}

// BreakerConfig builds the SMTP circuit breaker settings.
func BreakerConfig(cfg *config.Config) breaker.Config {
	return breaker.Config{
		Name:         "smtp",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     config.Seconds(cfg.CBIntervalSecs),
		Timeout:      config.Seconds(cfg.CBTimeoutSecs),
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
}

// RendererConfig builds the Chrome renderer settings.
func RendererConfig(cfg *config.Config) chromedp.Config {
	return chromedp.Config{
		RemoteURL: cfg.ChromeRemoteURL,
		NoSandbox: cfg.ChromeNoSandbox,
		Timeout:   config.Seconds(cfg.RenderTimeoutSecs),
	}
}

// Run starts the HTTP server and the Kafka consumer, then blocks until the
// context is canceled or either of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting order consumer",
			slog.String("topic", a.consumer.Topic()),
			slog.String("group", a.cfg.ConsumerGroup),
		)
		if err := a.consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.close()

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// close releases everything init may have opened. Safe on a partly built App.
func (a *App) close() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
		}
	}
	if a.renderer != nil {
		_ = a.renderer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
