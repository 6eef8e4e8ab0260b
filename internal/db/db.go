// Package db provides a pgxpool-based connection pool with schema migration,
// prepared statement registration and health checking.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oshri1997/Deal-Hunter/internal/config"
	"github.com/oshri1997/Deal-Hunter/internal/region"
)

//go:embed schema.sql
var schemaSQL string

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool. With AutoMigrate the
// schema is applied first on a dedicated connection, so the prepared
// statements registered on pool connections always see current tables.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg.AutoMigrate {
		if err := Migrate(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
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

// Migrate applies the embedded schema and upserts the region catalog.
func Migrate(ctx context.Context, databaseURL string) error {
	connCfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database URL: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return fmt.Errorf("connect for migration: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range region.All() {
		batch.Queue(`
			INSERT INTO regions (code, name, currency) VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, currency = EXCLUDED.currency`,
			r.Code, r.Name, r.Currency)
	}
	if err := conn.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed regions: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Statement names shared with the Postgres store.
const (
	StmtOpenDeals        = "open_deals_by_region"
	StmtWishlistWatchers = "wishlist_watchers"
	StmtRulesForDeal     = "rules_for_deal"
	StmtLoggedKey        = "notification_logged"
	StmtGetUser          = "get_user"
	StmtUserRegions      = "user_regions"
)

// registerPreparedStatements registers the statements on the ingestion and
// dispatch hot paths.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Reconciliation
		StmtOpenDeals: `SELECT id, game_id, region, price, list_price, currency, discount_percent,
			source_url, opened_at, last_seen_at
			FROM active_deals WHERE region = $1 AND closed_at IS NULL ORDER BY id`,

		// Matching
		StmtWishlistWatchers: `SELECT w.user_id FROM user_wishlist w
			JOIN user_regions r ON r.user_id = w.user_id AND r.region = $2
			WHERE w.game_id = $1 ORDER BY w.user_id`,
		StmtRulesForDeal: `SELECT a.id, a.user_id, a.game_id, COALESCE(a.region, ''), a.kind, a.threshold,
			a.created_at, a.fired_at, a.excursion
			FROM price_alert_rules a
			WHERE a.game_id = $1 AND (a.region = $2 OR (a.region IS NULL AND EXISTS (
				SELECT 1 FROM user_regions r WHERE r.user_id = a.user_id AND r.region = $2)))
			ORDER BY a.id`,

		// Dispatch
		StmtLoggedKey: `SELECT 1 FROM notification_log
			WHERE user_id = $1 AND game_id = $2 AND region = $3 AND opened_at = $4 AND reason_key = $5`,

		// Users
		StmtGetUser: `SELECT id, username, tier, cadence, premium_expires_at, created_at
			FROM users WHERE id = $1`,
		StmtUserRegions: "SELECT region FROM user_regions WHERE user_id = $1 ORDER BY region",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
