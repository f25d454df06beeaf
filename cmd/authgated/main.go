// Command authgated runs the auth service as a standalone HTTP daemon.
// Accounts live in the in-memory store, so it is meant for development
// and for storefronts that have not wired their own database yet.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	authgate "github.com/channelworks/authgate"
	"github.com/channelworks/authgate/httpapi"
	"github.com/channelworks/authgate/memstore"
	otelexport "github.com/channelworks/authgate/metrics/export/otel"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

type config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	TokenSigningKey string        `env:"TOKEN_SIGNING_KEY,required"`
	TokenIssuer     string        `env:"TOKEN_ISSUER" envDefault:"authgate"`
	TokenAudience   string        `env:"TOKEN_AUDIENCE" envDefault:"storefront"`
	AccessTTL       time.Duration `env:"ACCESS_TTL" envDefault:"1h"`
	RefreshTTL      time.Duration `env:"REFRESH_TTL" envDefault:"168h"`

	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"true"`
	CookieDomain string        `env:"COOKIE_DOMAIN"`

	RequireVerifiedEmail bool `env:"REQUIRE_VERIFIED_EMAIL" envDefault:"false"`

	LockoutMaxAttempts int           `env:"LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	LockoutDuration    time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	OTelMetrics    bool `env:"OTEL_METRICS" envDefault:"false"`
	AuditLog       bool `env:"AUDIT_LOG" envDefault:"false"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	agCfg := authgate.DefaultConfig()
	agCfg.Token.PrivateKey = []byte(cfg.TokenSigningKey)
	agCfg.Token.Issuer = cfg.TokenIssuer
	agCfg.Token.Audience = cfg.TokenAudience
	agCfg.Token.AccessTTL = cfg.AccessTTL
	agCfg.Token.RefreshTTL = cfg.RefreshTTL
	agCfg.Session.TTL = cfg.SessionTTL
	agCfg.Cookie.Secure = cfg.CookieSecure
	agCfg.Cookie.Domain = cfg.CookieDomain
	agCfg.Lockout.MaxAttempts = cfg.LockoutMaxAttempts
	agCfg.Lockout.LockDuration = cfg.LockoutDuration
	agCfg.EmailVerification.RequireForLogin = cfg.RequireVerifiedEmail
	agCfg.Metrics.Enabled = cfg.MetricsEnabled
	agCfg.Metrics.EnableLatencyHistograms = cfg.MetricsEnabled

	builder := authgate.New().
		WithConfig(agCfg).
		WithAccountStore(memstore.New()).
		WithMailer(logMailer{log: logger})

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		defer client.Close()
		builder = builder.WithRedis(client)
		logger.Info("sessions backed by redis", "addr", cfg.RedisAddr)
	} else {
		logger.Warn("no REDIS_ADDR set, sessions are in-memory and die with the process")
	}

	if cfg.AuditLog {
		builder = builder.WithAuditSink(authgate.NewJSONWriterSink(os.Stdout))
	}

	svc, err := builder.Build()
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.OTelMetrics {
		exporter, err := otelexport.NewExporter(otel.Meter("authgate"), svc)
		if err != nil {
			return err
		}
		defer exporter.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	httpapi.New(svc, logger).Register(e)
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- e.Start(cfg.Addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(ctx)
}

// logMailer stands in for a real delivery provider: it logs the challenge
// token instead of mailing it.
type logMailer struct {
	log *slog.Logger
}

func (m logMailer) SendVerification(_ context.Context, email, token string) error {
	m.log.Info("verification challenge issued", "email", email, "token", token)
	return nil
}

func (m logMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.log.Info("password reset challenge issued", "email", email, "token", token)
	return nil
}
