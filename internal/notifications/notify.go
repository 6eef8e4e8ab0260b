// Package notifications queues deal notification intents and delivers them
// according to each user's cadence.
//
// Pipeline: intents → enqueue (deliver-after from the tier's cadence policy)
// → claim due rows → drop reasons already in the notification log → send →
// log. Premium users are flushed at the end of the triggering cycle; digest
// users are flushed by the background worker once their digest time passes.
package notifications

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultDispatchInterval   = 30 * time.Second
	defaultBatchSize          = 200
	defaultMaxAttempts        = 5
	defaultRetryBackoff       = time.Minute
	defaultMaxDealsPerMessage = 10
	maxFlushRounds            = 20
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Config tunes the dispatcher.
type Config struct {
	DigestHour     int
	DigestMinute   int
	DigestLocation *time.Location

	MaxDealsPerMessage int
	// BatchSize bounds the users claimed per round.
	BatchSize          int
	MaxAttempts        int
	RetryBackoff       time.Duration
	DispatchInterval   time.Duration
}

// DefaultConfig returns production defaults: a 09:00 UTC digest.
func DefaultConfig() Config {
	return Config{
		DigestHour:         9,
		DigestLocation:     time.UTC,
		MaxDealsPerMessage: defaultMaxDealsPerMessage,
		BatchSize:          defaultBatchSize,
		MaxAttempts:        defaultMaxAttempts,
		RetryBackoff:       defaultRetryBackoff,
		DispatchInterval:   defaultDispatchInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DigestLocation == nil {
		c.DigestLocation = d.DigestLocation
	}
	if c.MaxDealsPerMessage <= 0 {
		c.MaxDealsPerMessage = d.MaxDealsPerMessage
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = d.DispatchInterval
	}
	return c
}

// EnqueueResult counts queued rows. Immediate lists users whose policy
// wants delivery at the end of the current cycle.
type EnqueueResult struct {
	Intents      int
	Queued       int
	UnknownUsers int
	Immediate    []int64
}

// Summary returns a human-readable summary.
func (r *EnqueueResult) Summary() string {
	return fmt.Sprintf("intents=%d queued=%d unknown_users=%d immediate_users=%d",
		r.Intents, r.Queued, r.UnknownUsers, len(r.Immediate))
}

// FlushResult tracks the outcome of one flush.
type FlushResult struct {
	Users      int
	Messages   int
	Delivered  int
	Duplicates int
	Retried    int
	GaveUp     int
	Errors     []string
}

// Summary returns a human-readable summary.
func (r *FlushResult) Summary() string {
	return fmt.Sprintf("users=%d messages=%d delivered=%d duplicates=%d retried=%d gave_up=%d errors=%d",
		r.Users, r.Messages, r.Delivered, r.Duplicates, r.Retried, r.GaveUp, len(r.Errors))
}

func (r *FlushResult) add(o FlushResult) {
	r.Users += o.Users
	r.Messages += o.Messages
	r.Delivered += o.Delivered
	r.Duplicates += o.Duplicates
	r.Retried += o.Retried
	r.GaveUp += o.GaveUp
	r.Errors = append(r.Errors, o.Errors...)
}
