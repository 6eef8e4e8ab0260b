package memory

import (
	"context"
	"sort"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// Enqueue adds items. An item whose log key is already queued refreshes
// the price fields of that row while it is still pending and is not
// counted.
func (s *Store) Enqueue(_ context.Context, items []model.QueueItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range items {
		k := it.LogKey()
		if id, exists := s.queueKeys[k]; exists {
			if row := s.queue[id]; row != nil && row.item.Status == model.QueuePending {
				row.item.Event = it.Event
				row.item.Price = it.Price
				row.item.ListPrice = it.ListPrice
				row.item.OldPrice = it.OldPrice
				row.item.DiscountPercent = it.DiscountPercent
				row.item.SourceURL = it.SourceURL
			}
			continue
		}
		s.nextQueue++
		it.ID = s.nextQueue
		it.Status = model.QueuePending
		s.queue[it.ID] = &queueRow{item: it}
		s.queueKeys[k] = it.ID
		n++
	}
	return n, nil
}

// ClaimDue marks the due pending items of up to limit users as sending.
// Users are taken in order of their earliest due item and are always
// claimed whole. A nil userIDs claims for every user.
func (s *Store) ClaimDue(_ context.Context, now time.Time, userIDs []int64, limit int) ([]model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var only map[int64]bool
	if userIDs != nil {
		only = make(map[int64]bool, len(userIDs))
		for _, id := range userIDs {
			only[id] = true
		}
	}

	var due []*queueRow
	for _, row := range s.queue {
		it := row.item
		if it.Status != model.QueuePending || it.DeliverAfter.After(now) {
			continue
		}
		if only != nil && !only[it.UserID] {
			continue
		}
		due = append(due, row)
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].item.DeliverAfter.Equal(due[j].item.DeliverAfter) {
			return due[i].item.DeliverAfter.Before(due[j].item.DeliverAfter)
		}
		return due[i].item.ID < due[j].item.ID
	})

	picked := make(map[int64]bool)
	for _, row := range due {
		if limit > 0 && len(picked) == limit {
			break
		}
		picked[row.item.UserID] = true
	}

	out := make([]model.QueueItem, 0, len(due))
	for _, row := range due {
		if !picked[row.item.UserID] {
			continue
		}
		row.item.Status = model.QueueSending
		row.claimedAt = now
		it := row.item
		it.GameTitle = s.titleLocked(it.GameID)
		out = append(out, it)
	}
	return out, nil
}

// FilterLogged reports which keys already have a notification log row.
func (s *Store) FilterLogged(_ context.Context, keys []model.LogKey) (map[model.LogKey]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.LogKey]bool)
	for _, k := range keys {
		if _, ok := s.sentLog[k]; ok {
			out[k] = true
		}
	}
	return out, nil
}

// MarkDelivered writes log rows for items (keeping existing ones) and
// removes them from the queue.
func (s *Store) MarkDelivered(_ context.Context, items []model.QueueItem, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		k := it.LogKey()
		if _, ok := s.sentLog[k]; !ok {
			s.sentLog[k] = sentAt
		}
		delete(s.queue, it.ID)
		if s.queueKeys[k] == it.ID {
			delete(s.queueKeys, k)
		}
	}
	return nil
}

// Reschedule returns claimed items to pending with a new due time.
func (s *Store) Reschedule(_ context.Context, items []model.QueueItem, retryAt time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		row, ok := s.queue[it.ID]
		if !ok {
			continue
		}
		row.item.Status = model.QueuePending
		row.item.Attempts++
		row.item.DeliverAfter = retryAt
		row.item.LastError = reason
	}
	return nil
}

// MarkFailed gives up on items.
func (s *Store) MarkFailed(_ context.Context, items []model.QueueItem, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		row, ok := s.queue[it.ID]
		if !ok {
			continue
		}
		row.item.Status = model.QueueFailed
		row.item.Attempts++
		row.item.LastError = reason
	}
	return nil
}

// ReleaseStale returns items stuck in sending since before cutoff to pending.
func (s *Store) ReleaseStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.queue {
		if row.item.Status == model.QueueSending && row.claimedAt.Before(cutoff) {
			row.item.Status = model.QueuePending
			n++
		}
	}
	return n, nil
}

// PurgeFailed deletes failed items created before cutoff.
func (s *Store) PurgeFailed(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, row := range s.queue {
		if row.item.Status == model.QueueFailed && row.item.CreatedAt.Before(cutoff) {
			delete(s.queue, id)
			k := row.item.LogKey()
			if s.queueKeys[k] == id {
				delete(s.queueKeys, k)
			}
			n++
		}
	}
	return n, nil
}

// Queued returns a copy of every queued item, ordered by id.
func (s *Store) Queued() []model.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.QueueItem, 0, len(s.queue))
	for _, row := range s.queue {
		out = append(out, row.item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
