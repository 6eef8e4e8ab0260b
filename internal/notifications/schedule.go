package notifications

import (
	"fmt"
	"time"
)

// Policy decides when an intent may be delivered.
type Policy interface {
	DeliverAt(now time.Time) time.Time
	// Buffered policies deliver everything due as one digest message.
	Buffered() bool
}

// Immediate delivers at the end of the triggering cycle.
type Immediate struct{}

func (Immediate) DeliverAt(now time.Time) time.Time { return now }
func (Immediate) Buffered() bool                    { return false }

// DailyDigest holds intents until the next daily digest time.
type DailyDigest struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// DeliverAt returns the first digest time at or after now.
func (d DailyDigest) DeliverAt(now time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, loc)
	if at.Before(local) {
		at = time.Date(local.Year(), local.Month(), local.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return at
}

func (DailyDigest) Buffered() bool { return true }

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// LoadLocation resolves a timezone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
