// Package postgres holds the pgx connection pool setup and the repositories
// backed by it. Search delegates entirely to the search_agreements database
// function; this process does no query planning of its own.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailcore/rebates-api/internal/health"
	"github.com/retailcore/rebates-api/internal/log"
	"github.com/retailcore/rebates-api/internal/xerrors"
)

// schema is the database schema all repositories address.
const schema = "rebates"

type PoolOptions struct {
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxConns         int
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
	AppName          string
}

// Connect builds a bounded pgx pool and verifies connectivity with one ping.
func Connect(ctx context.Context, o PoolOptions) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		o.Host, o.Port, o.User, o.Password, o.Database, o.SSLMode,
		int(o.ConnectTimeout.Seconds()),
	)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse postgres config")
	}
	cfg.MaxConns = int32(o.MaxConns)
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.ConnConfig.RuntimeParams["application_name"] = o.AppName
	if o.StatementTimeout > 0 {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] =
			fmt.Sprintf("%d", o.StatementTimeout.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(err, "create postgres pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, xerrors.Wrap(err, "ping postgres")
	}

	return pool, nil
}

// Probe adapts the pool ping into a health probe.
func Probe(pool *pgxpool.Pool) health.CheckFunc {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return xerrors.Wrap(err, "postgres ping")
		}
		return nil
	}
}

// PoolStatsFunc reports pool gauges; wired to metrics.SetDBPoolStats.
type PoolStatsFunc func(total, idle, acquired int)

// ReportPoolStats pushes pool stats to fn every interval until ctx ends.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, interval time.Duration, fn PoolStatsFunc) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s := pool.Stat()
			fn(int(s.TotalConns()), int(s.IdleConns()), int(s.AcquiredConns()))
		case <-ctx.Done():
			log.FromContext(ctx).Debug(ctx, "pool stats reporter stopped")
			return
		}
	}
}
