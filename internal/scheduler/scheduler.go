// Package scheduler selects the geographic sections most overdue for a
// re-crawl and seeds them from a static gazetteer on first run.
package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/model"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	CountSections(ctx context.Context) (int, error)
	SeedSections(ctx context.Context, sections []model.Section) error
	PickStaleSections(ctx context.Context, limit int) ([]model.Section, error)
}

// GazetteerEntry is one named location in the gazetteer file.
type GazetteerEntry struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Population float64 `json:"population"`
}

// Scheduler picks stale sections and handles first-run seeding.
type Scheduler struct {
	store Store
}

// New creates a Scheduler backed by the given store.
func New(store Store) *Scheduler {
	return &Scheduler{store: store}
}

// Seed populates the section table from the gazetteer JSON file (a mapping
// of name to lat/lon/population). It is a no-op once any section exists;
// seeded sections are immutable.
func (s *Scheduler) Seed(ctx context.Context, path string) error {
	n, err := s.store.CountSections(ctx)
	if err != nil {
		return eris.Wrap(err, "scheduler: count sections")
	}
	if n > 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "scheduler: read gazetteer %s", path)
	}

	var entries map[string]GazetteerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return eris.Wrapf(err, "scheduler: parse gazetteer %s", path)
	}
	if len(entries) == 0 {
		return eris.Errorf("scheduler: gazetteer %s is empty", path)
	}

	// Stable insertion order keeps section ids reproducible across seeds.
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	sections := make([]model.Section, 0, len(names))
	for _, name := range names {
		e := entries[name]
		sections = append(sections, model.Section{
			Name:       name,
			Lat:        e.Lat,
			Lon:        e.Lon,
			Population: e.Population,
		})
	}

	if err := s.store.SeedSections(ctx, sections); err != nil {
		return eris.Wrap(err, "scheduler: seed sections")
	}

	zap.L().Info("seeded sections from gazetteer",
		zap.String("path", path),
		zap.Int("count", len(sections)),
	)
	return nil
}

// PickStale returns at most limit sections ordered by how overdue they are
// for a re-crawl: the section whose stalest company was discovered longest
// ago first, sections never crawled before all of them.
func (s *Scheduler) PickStale(ctx context.Context, limit int) ([]model.Section, error) {
	sections, err := s.store.PickStaleSections(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: pick stale sections")
	}
	return sections, nil
}
