// Package app wires the authsvc process: configuration, logging, Postgres,
// Redis, the notification transport, the engine and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/authsvc"
	"github.com/MrEthical07/authsvc/httpapi"
	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/ledger"
	promexport "github.com/MrEthical07/authsvc/metrics/export/prometheus"
	"github.com/MrEthical07/authsvc/notify"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App owns every long-lived resource of the process.
type App struct {
	cfg      Config
	log      *slog.Logger
	pool     *pgxpool.Pool
	rdb      *redis.Client
	notifier io.Closer
	engine   *authsvc.Engine
	handler  http.Handler
}

// New connects to Postgres and Redis, applies migrations when enabled and
// builds the engine and router.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, pool: pool}

	if cfg.RunMigrations {
		if err := Migrate(ctx, pool); err != nil {
			a.close()
			return nil, err
		}
		log.Info("migrations applied")
	}

	a.rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := a.rdb.Ping(ctx).Err(); err != nil {
		a.close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	sender, closer, err := NewNotifier(cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.notifier = closer

	b := authsvc.New().
		WithConfig(engineCfg).
		WithRedis(a.rdb).
		WithIdentityStore(identity.NewPostgres(pool)).
		WithNotifier(sender).
		WithLogger(log)
	if cfg.LedgerBackend == "postgres" {
		b = b.WithLedger(ledger.NewPostgres(pool))
	}
	if cfg.AuditLog {
		b = b.WithAuditSink(authsvc.NewSlogSink(log))
	}
	a.engine, err = b.Build()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(a.engine),
		notify.BreakerState,
	)

	health := httpapi.NewHealth(5 * time.Second)
	health.Register("postgres", func(ctx context.Context) error { return PingDB(ctx, pool, 2*time.Second) })
	health.Register("redis", func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() })

	a.handler = httpapi.NewRouter(httpapi.Options{
		Service:      a.engine,
		Cookies:      httpapi.CookieConfig{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure},
		Logger:       log,
		Health:       health,
		Metrics:      promexport.Handler(reg),
		ExposeTokens: cfg.ExposeTokens,
	})
	return a, nil
}

// Engine returns the engine built by New.
func (a *App) Engine() *authsvc.Engine { return a.engine }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// releases every resource.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	a.log.Info("server starting",
		slog.String("addr", a.cfg.HTTPAddr),
		slog.String("ledger", a.cfg.LedgerBackend),
		slog.String("notifier", a.cfg.Notifier),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server stopping", slog.String("reason", "context done"))
	case err := <-errCh:
		a.log.Error("server failed", slog.String("error", err.Error()))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server shutdown failed", slog.String("error", err.Error()))
		return err
	}
	a.log.Info("server stopped")
	return nil
}

// close releases resources in reverse order of acquisition. The engine is
// closed first so buffered audit events are flushed.
func (a *App) close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.log.Warn("notifier close failed", slog.String("error", err.Error()))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
