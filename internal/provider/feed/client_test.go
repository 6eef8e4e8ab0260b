package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchPaginates(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Path != "/regions/US/deals" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"data":[{"title":"Elden Ring","price_text":"$29.99","currency":"USD"}],"meta":{"next_page":2}}`)
		case "2":
			fmt.Fprint(w, `{"data":[{"title":"Hades","price_text":"$12.49","currency":"USD"}],"meta":{"next_page":3}}`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", 1000, nil)
	raws, err := c.Fetch(context.Background(), "US", 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(raws))
	}
	if raws[0].RegionCode != "US" || raws[0].ScrapedAt.IsZero() {
		t.Fatalf("defaults not applied: %+v", raws[0])
	}
	if auth != "secret" {
		t.Fatalf("Authorization = %q", auth)
	}
}

func TestFetchFirstPageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 1000, nil)
	if _, err := c.Fetch(context.Background(), "US", 3); err == nil {
		t.Fatalf("expected error on first page failure")
	}
}

func TestFetchKeepsEarlierPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `{"data":[{"title":"Hades","price_text":"12.49"}],"meta":{"next_page":2}}`)
			return
		}
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 1000, nil)
	raws, err := c.Fetch(context.Background(), "IL", 5)
	if err != nil || len(raws) != 1 {
		t.Fatalf("expected the first page to survive, got %d rows err=%v", len(raws), err)
	}
}
