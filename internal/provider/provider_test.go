package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

type stubSource struct {
	name string
	raws []model.RawObservation
	err  error
}

func (s stubSource) Name() string { return s.name }
func (s stubSource) Fetch(context.Context, string, int) ([]model.RawObservation, error) {
	return s.raws, s.err
}

func TestAggregatorSkipsBrokenSource(t *testing.T) {
	a := NewAggregator(nil,
		stubSource{name: "bad", err: errors.New("blocked")},
		stubSource{name: "good", raws: []model.RawObservation{{Title: "Hades"}}},
	)
	raws, err := a.Fetch(context.Background(), "US", 1)
	if err != nil || len(raws) != 1 {
		t.Fatalf("Fetch = %v, %v", raws, err)
	}
	if a.Name() != "bad+good" {
		t.Fatalf("Name = %q", a.Name())
	}
}

func TestAggregatorAllFailed(t *testing.T) {
	a := NewAggregator(nil, stubSource{name: "bad", err: errors.New("blocked")})
	if _, err := a.Fetch(context.Background(), "US", 1); err == nil {
		t.Fatalf("expected error when every source fails")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.json")
	body := `{"observations":[
		{"title":"Elden Ring","price_text":"29.99","region_code":"US"},
		{"title":"Hades","price_text":"45.00","region_code":"IL"},
		{"title":"Celeste","price_text":"4.99"}
	]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	raws, err := NewFileSource(path).Fetch(context.Background(), "US", 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected US row plus region-less row, got %+v", raws)
	}
	for _, r := range raws {
		if r.ScrapedAt.IsZero() {
			t.Fatalf("scraped_at default missing: %+v", r)
		}
	}
}

func TestDecodeObservationsArray(t *testing.T) {
	raws, err := DecodeObservations([]byte(` [{"title":"Hades","price_text":"1"}]`))
	if err != nil || len(raws) != 1 {
		t.Fatalf("DecodeObservations = %v, %v", raws, err)
	}
}
