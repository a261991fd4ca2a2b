// Package dbpool manages the PostgreSQL pool behind the self-hosted document store.
package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxConns         = 10
	defaultStatementTimeout = 30 * time.Second
)

// Options configures NewPool.
type Options struct {
	URL              string
	MaxConns         int
	StatementTimeout time.Duration
}

// Pool exposes only the query surface the store needs. Store methods bound
// every call with their own timeout.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects and pings before returning.
func NewPool(ctx context.Context, opts Options) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	timeout := opts.StatementTimeout
	if timeout <= 0 {
		timeout = defaultStatementTimeout
	}
	cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(timeout.Milliseconds(), 10)
	cfg.ConnConfig.RuntimeParams["application_name"] = "cloudhooks"

	maxConns := opts.MaxConns
	if maxConns < 1 {
		maxConns = defaultMaxConns
	}

	cfg.MaxConns = int32(maxConns) //nolint:gosec // validated by config.
	cfg.MinConns = min(2, cfg.MaxConns)
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

// Ping acquires a connection and round-trips to the server.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

// SQLDB returns a database/sql handle sharing this pool, for tools such as
// the migration runner that only speak database/sql. Closing it does not
// close the pool.
func (p *Pool) SQLDB() *sql.DB {
	return stdlib.OpenDBFromPool(p.pool)
}

func (p *Pool) Close() {
	p.pool.Close()
}
