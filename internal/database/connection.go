package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Config holds database connection configuration
type Config struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// NewPool creates a pgx pool whose connections know the pgvector types.
// The vector extension must exist before the first connection is made, so
// run migrations with a plain pool (see NewPlainPool) first.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	return newPool(ctx, cfg, true)
}

// NewPlainPool creates a pool without registering vector types.
func NewPlainPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	return newPool(ctx, cfg, false)
}

func newPool(ctx context.Context, cfg Config, registerVector bool) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if registerVector {
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
