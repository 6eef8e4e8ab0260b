package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oshri1997/Deal-Hunter/internal/db"
	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// Enqueue inserts queue rows. A row whose log key is already queued gets
// its price fields refreshed while still pending; only inserts are counted.
func (s *Store) Enqueue(ctx context.Context, items []model.QueueItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO notification_queue (
				user_id, game_id, region, opened_at, reason_key, reason, rule_id, alert_kind, threshold,
				event, price, list_price, old_price, currency, discount_percent, source_url,
				status, deliver_after, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,'pending',$17,$18)
			ON CONFLICT (user_id, game_id, region, opened_at, reason_key) DO UPDATE SET
				event = EXCLUDED.event,
				price = EXCLUDED.price,
				list_price = EXCLUDED.list_price,
				old_price = EXCLUDED.old_price,
				discount_percent = EXCLUDED.discount_percent,
				source_url = EXCLUDED.source_url
			WHERE notification_queue.status = 'pending'
			RETURNING (xmax = 0)`,
			it.UserID, it.GameID, it.Region, it.OpenedAt, it.ReasonKey, string(it.Reason), it.RuleID,
			string(it.AlertKind), it.Threshold, string(it.Event), it.Price, it.ListPrice, it.OldPrice,
			it.Currency, it.DiscountPercent, it.SourceURL, it.DeliverAfter, it.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	inserted := 0
	for range items {
		var fresh bool
		err := br.QueryRow().Scan(&fresh)
		switch {
		case err == nil:
			if fresh {
				inserted++
			}
		case errors.Is(err, pgx.ErrNoRows):
			// Already claimed or failed; left untouched.
		default:
			return inserted, fmt.Errorf("insert notification: %w", err)
		}
	}
	return inserted, nil
}

// ClaimDue atomically claims every due row of up to limit users for
// sending. Users are picked by their earliest due row.
// Uses FOR UPDATE SKIP LOCKED for safe concurrent dispatch.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, userIDs []int64, limit int) ([]model.QueueItem, error) {
	rows, err := s.pool.Query(ctx, `
		WITH due_users AS (
			SELECT user_id FROM notification_queue
			WHERE status = 'pending' AND deliver_after <= $1
				AND ($2::bigint[] IS NULL OR user_id = ANY($2))
			GROUP BY user_id
			ORDER BY min(deliver_after), min(id)
			LIMIT $3
		)
		UPDATE notification_queue q
		SET status = 'sending', claimed_at = $1
		FROM games g
		WHERE g.id = q.game_id AND q.id IN (
			SELECT id FROM notification_queue
			WHERE status = 'pending' AND deliver_after <= $1
				AND user_id IN (SELECT user_id FROM due_users)
			FOR UPDATE SKIP LOCKED
		)
		RETURNING q.id, q.user_id, q.game_id, g.title, q.region, q.opened_at, q.reason_key, q.reason,
			q.rule_id, q.alert_kind, q.threshold, q.event, q.price, q.list_price, q.old_price,
			q.currency, q.discount_percent, q.source_url, q.status, q.deliver_after, q.attempts,
			q.last_error, q.created_at`,
		now, userIDs, limitArg(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications: %w", err)
	}
	defer rows.Close()

	var claimed []model.QueueItem
	for rows.Next() {
		var (
			it                             model.QueueItem
			reason, alertKind, event, stat string
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.GameID, &it.GameTitle, &it.Region, &it.OpenedAt,
			&it.ReasonKey, &reason, &it.RuleID, &alertKind, &it.Threshold, &event, &it.Price,
			&it.ListPrice, &it.OldPrice, &it.Currency, &it.DiscountPercent, &it.SourceURL, &stat,
			&it.DeliverAfter, &it.Attempts, &it.LastError, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan claimed: %w", err)
		}
		it.Reason = model.ReasonKind(reason)
		it.AlertKind = model.AlertKind(alertKind)
		it.Event = model.EventKind(event)
		it.Status = model.QueueStatus(stat)
		it.OpenedAt = it.OpenedAt.UTC()
		claimed = append(claimed, it)
	}
	return claimed, rows.Err()
}

// FilterLogged reports which keys already have a notification log row.
func (s *Store) FilterLogged(ctx context.Context, keys []model.LogKey) (map[model.LogKey]bool, error) {
	out := make(map[model.LogKey]bool)
	if len(keys) == 0 {
		return out, nil
	}
	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(db.StmtLoggedKey, k.UserID, k.GameID, k.Region, k.OpenedAt, k.ReasonKey)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, k := range keys {
		var one int
		err := br.QueryRow().Scan(&one)
		switch {
		case err == nil:
			out[k] = true
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return nil, fmt.Errorf("check notification log: %w", err)
		}
	}
	return out, nil
}

// MarkDelivered writes the log rows and removes the queue rows in one
// transaction.
func (s *Store) MarkDelivered(ctx context.Context, items []model.QueueItem, sentAt time.Time) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		k := it.LogKey()
		batch.Queue(`
			INSERT INTO notification_log (user_id, game_id, region, opened_at, reason_key, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`,
			k.UserID, k.GameID, k.Region, k.OpenedAt, k.ReasonKey, sentAt)
		ids = append(ids, it.ID)
	}
	batch.Queue("DELETE FROM notification_queue WHERE id = ANY($1)", ids)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("log delivered: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Reschedule returns claimed rows to pending with a new due time.
func (s *Store) Reschedule(ctx context.Context, items []model.QueueItem, retryAt time.Time, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'pending', attempts = attempts + 1, deliver_after = $2, last_error = $3, claimed_at = NULL
		WHERE id = ANY($1)`, queueIDs(items), retryAt, reason)
	if err != nil {
		return fmt.Errorf("reschedule notifications: %w", err)
	}
	return nil
}

// MarkFailed gives up on rows.
func (s *Store) MarkFailed(ctx context.Context, items []model.QueueItem, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'failed', attempts = attempts + 1, last_error = $2, claimed_at = NULL
		WHERE id = ANY($1)`, queueIDs(items), reason)
	if err != nil {
		return fmt.Errorf("mark notifications failed: %w", err)
	}
	return nil
}

// ReleaseStale returns rows stuck in sending since before cutoff to pending.
func (s *Store) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_queue SET status = 'pending', claimed_at = NULL
		WHERE status = 'sending' AND claimed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeFailed deletes failed rows created before cutoff.
func (s *Store) PurgeFailed(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM notification_queue WHERE status = 'failed' AND created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge failed notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func queueIDs(items []model.QueueItem) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
