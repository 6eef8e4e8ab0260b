package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// StartWorker runs a background loop that flushes every due row.
// Blocks until ctx is cancelled. Intended to be called with `go`.
func StartWorker(ctx context.Context, d *Dispatcher, logger *slog.Logger) {
	interval := d.cfg.DispatchInterval
	logger.Info("Notification dispatch worker started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := d.Flush(ctx, nil)
			if err != nil {
				logger.Error("Dispatch failed", "error", err)
			} else if res.Messages+res.Duplicates+res.Retried+res.GaveUp > 0 {
				logger.Info("Dispatch batch complete", "summary", res.Summary())
			}
		case <-ctx.Done():
			logger.Info("Notification dispatch worker stopped")
			return
		}
	}
}

// Flush delivers every due row for the given users, or for everyone when
// userIDs is nil. A failure for one user never blocks the others.
func (d *Dispatcher) Flush(ctx context.Context, userIDs []int64) (FlushResult, error) {
	var res FlushResult
	if userIDs != nil && len(userIDs) == 0 {
		return res, nil
	}

	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	for round := 0; round < maxFlushRounds; round++ {
		claimed, err := d.store.ClaimDue(ctx, d.now().UTC(), userIDs, d.cfg.BatchSize)
		if err != nil {
			return res, fmt.Errorf("claim due notifications: %w", err)
		}
		if len(claimed) == 0 {
			break
		}
		batch, err := d.deliver(ctx, claimed)
		res.add(batch)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// deliver sends one claimed batch. A batch holds every due row of the
// users in it, so a digest is never split. Rows whose log key is already present
// are dropped as duplicates without sending.
func (d *Dispatcher) deliver(ctx context.Context, claimed []model.QueueItem) (FlushResult, error) {
	var res FlushResult

	keys := make([]model.LogKey, len(claimed))
	for i, it := range claimed {
		keys[i] = it.LogKey()
	}
	logged, err := d.store.FilterLogged(ctx, keys)
	if err != nil {
		return res, fmt.Errorf("filter logged: %w", err)
	}

	var dups []model.QueueItem
	byUser := make(map[int64][]model.QueueItem)
	for _, it := range claimed {
		if logged[it.LogKey()] {
			dups = append(dups, it)
			continue
		}
		byUser[it.UserID] = append(byUser[it.UserID], it)
	}
	if len(dups) > 0 {
		if err := d.store.MarkDelivered(ctx, dups, d.now().UTC()); err != nil {
			return res, fmt.Errorf("drop duplicates: %w", err)
		}
		res.Duplicates = len(dups)
		d.metrics.AddNotifications("duplicate", len(dups))
	}
	if len(byUser) == 0 {
		return res, nil
	}

	ids := make([]int64, 0, len(byUser))
	for id := range byUser {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	users, err := d.store.GetUsers(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("load users: %w", err)
	}

	for _, id := range ids {
		items := byUser[id]
		u, ok := users[id]
		if !ok {
			if err := d.store.MarkFailed(ctx, items, "unknown user"); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("user %d: %v", id, err))
			}
			res.GaveUp += len(items)
			d.metrics.AddNotifications("failed", len(items))
			continue
		}
		res.Users++
		d.deliverUser(ctx, u, items, &res)
	}
	return res, nil
}

// deliverUser renders and sends a user's messages, logging each message's
// rows only after the send succeeded.
func (d *Dispatcher) deliverUser(ctx context.Context, u model.User, items []model.QueueItem, res *FlushResult) {
	groups := groupByDeal(items)

	type message struct {
		text  string
		items []model.QueueItem
	}
	var msgs []message
	if d.PolicyFor(u).Buffered() {
		msgs = append(msgs, message{text: digestMessage(groups, d.cfg.MaxDealsPerMessage), items: items})
	} else {
		for _, g := range groups {
			msgs = append(msgs, message{text: dealMessage(g), items: g.items})
		}
	}

	for _, m := range msgs {
		start := time.Now()
		err := d.sender.Send(ctx, u.ID, m.text)
		d.metrics.ObserveSend(err, time.Since(start))
		if err != nil {
			d.logger.Warn("Send failed", "user_id", u.ID, "rows", len(m.items), "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("user %d: %v", u.ID, err))
			d.settleFailure(ctx, m.items, err.Error(), res)
			continue
		}
		res.Messages++
		if err := d.store.MarkDelivered(ctx, m.items, d.now().UTC()); err != nil {
			// Rows stay in sending until ReleaseStale returns them.
			d.logger.Error("Failed to log delivered notifications", "user_id", u.ID, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("user %d: log delivered: %v", u.ID, err))
			continue
		}
		res.Delivered += len(m.items)
		d.metrics.AddNotifications("delivered", len(m.items))
	}
}

// settleFailure reschedules rows with exponential backoff or gives up once
// MaxAttempts is reached.
func (d *Dispatcher) settleFailure(ctx context.Context, items []model.QueueItem, reason string, res *FlushResult) {
	now := d.now().UTC()
	var dead []model.QueueItem
	for _, it := range items {
		if it.Attempts+1 >= d.cfg.MaxAttempts {
			dead = append(dead, it)
			continue
		}
		retryAt := now.Add(d.backoff(it.Attempts + 1))
		if err := d.store.Reschedule(ctx, []model.QueueItem{it}, retryAt, reason); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("reschedule %d: %v", it.ID, err))
			continue
		}
		res.Retried++
	}
	d.metrics.AddNotifications("retried", len(items)-len(dead))
	if len(dead) == 0 {
		return
	}
	if err := d.store.MarkFailed(ctx, dead, reason); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("mark failed: %v", err))
		return
	}
	res.GaveUp += len(dead)
	d.metrics.AddNotifications("failed", len(dead))
}

// backoff returns RetryBackoff * 2^(attempt-1), capped at a day.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	b := d.cfg.RetryBackoff
	for i := 1; i < attempt; i++ {
		b *= 2
		if b >= 24*time.Hour {
			return 24 * time.Hour
		}
	}
	return b
}
