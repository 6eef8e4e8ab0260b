// Package postgres implements the engine's store interfaces on Postgres
// through pgx. Every multi-row transition runs in one transaction; uniqueness
// rules (one open deal per game and region, one log row per notification
// key) are enforced by the schema.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oshri1997/Deal-Hunter/internal/db"
	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/store"
)

// ScrapeChannel is the NOTIFY channel used to request an out-of-band scrape.
const ScrapeChannel = "scrape_requested"

// Store is the Postgres-backed store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a connection pool.
func New(p *db.Pool) *Store {
	return &Store{pool: p.Pool}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// LockRegion takes a session advisory lock for the region so only one
// cycle per region runs across every process sharing the database. The
// returned func releases it.
func (s *Store) LockRegion(ctx context.Context, code string) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	key := advisoryKey("region:" + code)
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock region %s: %w", code, err)
	}
	return func() {
		// Unlock on a fresh context: the cycle's context may be cancelled.
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", key); err != nil {
			// Drop the connection so the session lock dies with it.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}

// RequestScrape publishes a scrape request for the listener of the
// long-running service.
func (s *Store) RequestScrape(ctx context.Context, req model.ScrapeRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal scrape request: %w", err)
	}
	if _, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", ScrapeChannel, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", ScrapeChannel, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func advisoryKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("deal-hunter:" + name))
	return int64(h.Sum64())
}

// notFound maps missing rows and foreign-key violations to store.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
