// Package provider defines where raw deal observations come from: a remote
// deal feed, a JSON file, or several of them combined.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// Source yields raw observations for one region. pages bounds how deep a
// paginated source reads.
type Source interface {
	Name() string
	Fetch(ctx context.Context, region string, pages int) ([]model.RawObservation, error)
}

// --------------------------------------------------------------------------
// Aggregator
// --------------------------------------------------------------------------

// Aggregator reads every source for a region. A failing source is logged and
// skipped; the call fails only when every source failed.
type Aggregator struct {
	sources []Source
	logger  *slog.Logger
}

func NewAggregator(logger *slog.Logger, sources ...Source) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{sources: sources, logger: logger}
}

func (a *Aggregator) Name() string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (a *Aggregator) Fetch(ctx context.Context, region string, pages int) ([]model.RawObservation, error) {
	var (
		out  []model.RawObservation
		errs []error
	)
	for _, src := range a.sources {
		raws, err := src.Fetch(ctx, region, pages)
		if err != nil {
			a.logger.Warn("Source failed", "source", src.Name(), "region", region, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		out = append(out, raws...)
	}
	if len(a.sources) > 0 && len(errs) == len(a.sources) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// File
// --------------------------------------------------------------------------

// FileSource replays observations from a JSON file: either an array of
// observations or an object with an "observations" array. Rows without a
// region are assigned to the requested one; rows without a scrape time get
// the load time.
type FileSource struct {
	path string
	now  func() time.Time
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, now: time.Now}
}

func (f *FileSource) Name() string { return "file:" + f.path }

func (f *FileSource) Fetch(_ context.Context, region string, _ int) ([]model.RawObservation, error) {
	all, err := f.Load()
	if err != nil {
		return nil, err
	}
	var out []model.RawObservation
	for _, r := range all {
		if r.RegionCode == "" {
			r.RegionCode = region
		}
		if strings.EqualFold(r.RegionCode, region) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Load returns every observation in the file.
func (f *FileSource) Load() ([]model.RawObservation, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	raws, err := DecodeObservations(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	now := f.now().UTC()
	for i := range raws {
		if raws[i].ScrapedAt.IsZero() {
			raws[i].ScrapedAt = now
		}
	}
	return raws, nil
}

// DecodeObservations accepts a bare array or {"observations": [...]}.
func DecodeObservations(data []byte) ([]model.RawObservation, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var raws []model.RawObservation
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	}
	var wrapped struct {
		Observations []model.RawObservation `json:"observations"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Observations, nil
}
