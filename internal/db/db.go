// Package db provides a pgxpool-based connection pool with prepared statement
// registration, schema migration and health checking.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/almaty-air/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection. The statements
	// reference the tables created by Migrate, so a fresh database must be
	// migrated through a plain connection first.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Migrate applies the embedded schema over a dedicated connection. Every
// statement is idempotent, so Migrate is safe to run on each start.
func Migrate(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("migrate: connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: apply schema: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// PurgeDeliveries deletes delivery log rows attempted before cutoff and
// returns how many were removed.
func (p *Pool) PurgeDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.Exec(ctx, "deliveries_purge", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// subscriberColumns is the column order scanned by the notifications store.
const subscriberColumns = "telegram_id, daily_enabled, daily_hour, daily_minute, alert_enabled, alert_threshold, last_band"

// registerPreparedStatements registers all statements the scheduler, API and
// CLI use.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Subscribers
		"subscribers_due_for_digest": "SELECT " + subscriberColumns + " FROM " + config.SubscribersTable +
			" WHERE daily_enabled AND daily_hour = $1 AND daily_minute = $2 ORDER BY telegram_id",
		"subscribers_alert_enabled": "SELECT " + subscriberColumns + " FROM " + config.SubscribersTable +
			" WHERE alert_enabled ORDER BY telegram_id",
		"subscriber_set_last_band": "UPDATE " + config.SubscribersTable +
			" SET last_band = $2, updated_at = NOW() WHERE telegram_id = $1",

		// Delivery log
		"delivery_insert": "INSERT INTO " + config.DeliveriesTable +
			" (subscriber_id, kind, aqi, band, status, last_error, attempted_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		"deliveries_purge": "DELETE FROM " + config.DeliveriesTable + " WHERE attempted_at < $1",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
