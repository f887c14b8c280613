// Package state holds the consolidated, latest-known value of every metric.
package state

import (
	"sync"

	"github.com/speedwagon-io/solarbridge/internal/model"
)

// Store is safe for concurrent use. A Snapshot taken from it always reflects
// whole applied updates, never half of one.
type Store struct {
	mu   sync.RWMutex
	data model.Snapshot
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Update(m model.Metric, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Set(m, v)
}

// Apply writes every field of a reading under a single lock and returns the
// resulting snapshot.
func (s *Store) Apply(r model.Reading) model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range r.Fields {
		s.data.Set(f.Metric, f.Value)
	}
	return s.data
}

func (s *Store) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

func (s *Store) FormatReport() string {
	return model.FormatReport(s.Snapshot())
}
