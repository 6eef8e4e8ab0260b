package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/oshri1997/Deal-Hunter/internal/cache"
)

func TestConvertWithLiveRates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/ILS" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"result":"success","rates":{"ILS":1,"USD":0.25,"INR":20}}`)
	}))
	defer srv.Close()

	c := cache.New(true)
	defer c.Close()
	s := New(srv.URL, "ILS", c, nil)
	ctx := context.Background()

	got, ok := s.Convert(ctx, 1000, "USD") // $10.00
	if !ok || got.String() != "40" {
		t.Fatalf("Convert USD = %s %v, want 40", got, ok)
	}
	got, ok = s.Convert(ctx, 10000, "INR") // ₹100.00
	if !ok || got.String() != "5" {
		t.Fatalf("Convert INR = %s %v, want 5", got, ok)
	}
	if calls.Load() != 1 {
		t.Fatalf("rates should be cached, API called %d times", calls.Load())
	}
}

func TestFallbackRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := New(srv.URL, "ILS", nil, nil)
	got, ok := s.Convert(context.Background(), 1000, "USD")
	if !ok || got.String() != "37" {
		t.Fatalf("fallback Convert = %s %v, want 37", got, ok)
	}
	if _, ok := s.Convert(context.Background(), 1000, "GBP"); ok {
		t.Fatalf("GBP has no fallback rate")
	}
}

func TestConvertSameCurrency(t *testing.T) {
	s := New("http://127.0.0.1:0", "ILS", nil, nil)
	got, ok := s.Convert(context.Background(), 4590, "ils")
	if !ok || got.String() != "45.9" {
		t.Fatalf("Convert ILS = %s %v", got, ok)
	}
}
