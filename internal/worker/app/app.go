package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tedymoisa/micro-link-shortener/internal/rabbitmq"
	"github.com/tedymoisa/micro-link-shortener/internal/repository"
	"github.com/tedymoisa/micro-link-shortener/internal/worker/config"
	"github.com/tedymoisa/micro-link-shortener/internal/worker/consumer"
	"github.com/tedymoisa/micro-link-shortener/internal/worker/service"
	valkeylib "github.com/valkey-io/valkey-go"
)

type App struct {
	cfg      *config.Config
	l        *slog.Logger
	pool     *pgxpool.Pool
	valkey   valkeylib.Client
	rabbit   *rabbitmq.Client
	consumer *consumer.Consumer

	stopOnce sync.Once
}

// New wires the worker: store, cache, then the queue client. The schema is
// owned by the gateway, so no migrations run here. A broker that is still
// booting does not fail construction; the consumer waits for a channel.
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
	svc := service.New(repo, cache, l)
	a.consumer = consumer.New(l, a.rabbit, svc, cfg.RabbitMQ.Queue, cfg.Worker.MaxRetries)

	return a, nil
}

// Start blocks consuming creation events until ctx is canceled.
func (a *App) Start(ctx context.Context) {
	a.l.Info("worker listening for creation events", slog.String("queue", a.cfg.RabbitMQ.Queue))
	a.consumer.Run(ctx)
}

// Stop closes the queue, cache and store connections once. The consumer
// goroutine has already drained: Run returns on context cancellation and
// the last dispatched handler finishes before the connection is torn down.
func (a *App) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.l.Info("[!] Shutting down...")

		a.rabbit.Close()
		a.valkey.Close()
		a.pool.Close()

		a.l.Info("Stopped gracefully")
	})

	return nil
}
