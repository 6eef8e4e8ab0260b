// Package listener provides a Postgres LISTEN/NOTIFY consumer for scrape
// requests. It holds a dedicated pgx connection (not from the pool)
// listening on the `scrape_requested` channel, so `ingest trigger` and other
// processes sharing the database can ask the long-running service to scrape.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/store/postgres"
)

const (
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Trigger accepts scrape requests; satisfied by *maintenance.Scheduler.
type Trigger interface {
	Trigger(req model.ScrapeRequest) bool
}

// Start opens a dedicated connection and listens on the scrape channel. It
// reconnects automatically on connection loss. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, trigger Trigger, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, trigger, logger)
		if ctx.Err() != nil {
			logger.Info("Scrape listener stopped (context cancelled)")
			return
		}

		logger.Error("Scrape listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, trigger Trigger, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+postgres.ScrapeChannel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", postgres.ScrapeChannel, err)
	}
	logger.Info("Scrape listener connected", "channel", postgres.ScrapeChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		req, err := ParsePayload(notification.Payload)
		if err != nil {
			logger.Warn("Failed to parse scrape request",
				"payload", notification.Payload, "error", err)
			continue
		}

		logger.Info("Scrape request received", "region", req.Region, "full", req.Full)
		trigger.Trigger(req)
	}
}

// ParsePayload decodes a notification payload. Besides the JSON form a bare
// region code (or an empty payload for every region) is accepted, so
// `NOTIFY scrape_requested, 'US'` works from psql.
func ParsePayload(payload string) (model.ScrapeRequest, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return model.ScrapeRequest{}, nil
	}
	if !strings.HasPrefix(payload, "{") {
		return model.ScrapeRequest{Region: strings.ToUpper(payload)}, nil
	}
	var req model.ScrapeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return model.ScrapeRequest{}, err
	}
	req.Region = strings.ToUpper(strings.TrimSpace(req.Region))
	return req, nil
}
