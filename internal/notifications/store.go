package notifications

import (
	"context"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// Store is the outbox persistence the dispatcher needs. Enqueue must not
// duplicate an item whose log key is already queued, only refresh its price
// while pending; MarkDelivered must write the log row and drop the queue row
// in one step.
type Store interface {
	GetUsers(ctx context.Context, ids []int64) (map[int64]model.User, error)

	Enqueue(ctx context.Context, items []model.QueueItem) (int, error)
	// ClaimDue moves the due pending rows of up to limit users to sending,
	// never splitting one user's rows across calls. nil userIDs claims for
	// every user.
	ClaimDue(ctx context.Context, now time.Time, userIDs []int64, limit int) ([]model.QueueItem, error)
	FilterLogged(ctx context.Context, keys []model.LogKey) (map[model.LogKey]bool, error)
	MarkDelivered(ctx context.Context, items []model.QueueItem, sentAt time.Time) error
	Reschedule(ctx context.Context, items []model.QueueItem, retryAt time.Time, reason string) error
	MarkFailed(ctx context.Context, items []model.QueueItem, reason string) error
}
