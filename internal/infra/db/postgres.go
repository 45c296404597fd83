package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"boxd-notifier/internal/infra/metrics"
)

// Connect создаёт пул подключений к Postgres и проверяет соединение.
func Connect(dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 5
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	err = pool.Ping(ctx)
	metrics.ObserveNetworkRequest("postgres", "ping", cfg.ConnConfig.Host, start, err)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
