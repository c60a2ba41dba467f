package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tedymoisa/micro-link-shortener/internal/db"
	"github.com/tedymoisa/micro-link-shortener/internal/gateway/config"
	"github.com/tedymoisa/micro-link-shortener/internal/gateway/service"
	handler "github.com/tedymoisa/micro-link-shortener/internal/gateway/transport/http"
	"github.com/tedymoisa/micro-link-shortener/internal/rabbitmq"
	"github.com/tedymoisa/micro-link-shortener/internal/repository"
	valkeylib "github.com/valkey-io/valkey-go"
)

type App struct {
	cfg    *config.Config
	l      *slog.Logger
	pool   *pgxpool.Pool
	valkey valkeylib.Client
	rabbit *rabbitmq.Client
	e      *echo.Echo

	stopOnce sync.Once
}

// New wires the gateway: store first, then cache, then the queue client.
// A broker that is still booting does not fail construction; the rabbit
// client keeps retrying in the background.
func New(ctx context.Context, cfg *config.Config, l *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, l: l}

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.Postgres.MaxConns

	a.pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.Migrate(sql.OpenDB(stdlib.GetConnector(*a.pool.Config().ConnConfig))); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a.valkey, err = valkeylib.NewClient(valkeylib.ClientOption{
		InitAddress: []string{cfg.Valkey.Addr},
		Password:    cfg.Valkey.Password,
		SelectDB:    cfg.Valkey.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}

	a.rabbit = rabbitmq.New(cfg.RabbitMQ.URL, l)
	if err := a.rabbit.Connect(ctx); err != nil {
		l.Warn("rabbitmq not available yet, background reconnect armed", slog.Any("error", err))
	}

	repo := repository.NewPostgresRepo(a.pool, l)
	cache := repository.NewValkeyCache(a.valkey, l)
	svc := service.New(repo, cache, a.rabbit, cfg.RabbitMQ.Queue, l)
	h := handler.NewHandler(svc)

	a.e = echo.New()
	a.e.HideBanner = true
	a.e.Use(middleware.Logger())
	a.e.Use(middleware.Recover())

	api := a.e.Group("/api")
	api.POST("/shorten", h.Shorten)
	api.GET("/:shortCode/url", h.GetURL)
	api.GET("/:shortCode/qr", h.GetQRCode)
	a.e.GET("/:shortCode", h.Redirect)

	return a, nil
}

func (a *App) Start(ctx context.Context, errChan chan<- error) {
	go a.assertQueue(ctx)

	a.l.Info("starting server", slog.String("addr", a.cfg.Server.Addr))
	if err := a.e.Start(a.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errChan <- err
	}
}

// assertQueue declares the creation-event queue as soon as a channel is
// available, so published events survive a broker restart even before the
// worker has ever connected.
func (a *App) assertQueue(ctx context.Context) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()

	for {
		if err := a.rabbit.AssertQueue(a.cfg.RabbitMQ.Queue); err == nil {
			a.l.Info("queue asserted", slog.String("queue", a.cfg.RabbitMQ.Queue))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Stop shuts the gateway down once: HTTP server first (stop new work),
// then queue, cache and store connections. Repeat calls are no-ops.
func (a *App) Stop(ctx context.Context) error {
	var stopErr error

	a.stopOnce.Do(func() {
		a.l.Info("[!] Shutting down...")

		if err := a.e.Shutdown(ctx); err != nil {
			stopErr = errors.Join(stopErr, err)
		}

		a.rabbit.Close()
		a.valkey.Close()
		a.pool.Close()

		a.l.Info("Stopped gracefully")
	})

	return stopErr
}
