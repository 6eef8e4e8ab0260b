package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCycle("US", "ok", time.Second)
	m.IncEvent("US", "opened")
	m.IncDropped("US", "price_text")
	m.AddEnqueued(3)
	m.AddNotifications("delivered", 1)
	m.ObserveSend(errors.New("boom"), time.Millisecond)
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncEvent("US", "opened")
	m.IncEvent("US", "opened")
	m.AddNotifications("delivered", 4)
	m.AddNotifications("delivered", 0)

	if got := testutil.ToFloat64(m.events.WithLabelValues("US", "opened")); got != 2 {
		t.Fatalf("events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("delivered")); got != 4 {
		t.Fatalf("notifications = %v, want 4", got)
	}
}

func TestDefaultSingleton(t *testing.T) {
	ResetForTest()
	defer ResetForTest()
	if Default() != Default() {
		t.Fatalf("Default should return the same instance")
	}
}
