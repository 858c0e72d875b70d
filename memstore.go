package profilex

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process RecordStore, useful for tests and small
// deployments that can afford to refetch on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	subjects map[string]map[string]Record
}

var _ RecordStore = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subjects: make(map[string]map[string]Record),
	}
}

// FindAll returns the records for subject, ordered by source name.
func (s *MemoryStore) FindAll(_ context.Context, subject string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySource := s.subjects[subject]
	records := make([]Record, 0, len(bySource))
	for _, rec := range bySource {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Source < records[j].Source
	})
	return records, nil
}

// Find returns the record for one (subject, source) pair.
func (s *MemoryStore) Find(_ context.Context, subject, source string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.subjects[subject][source]
	if !ok {
		return Record{}, &ErrRecordNotFound{Subject: subject, Source: source}
	}
	return rec, nil
}

// Upsert creates or updates the record for (subject, source).
func (s *MemoryStore) Upsert(_ context.Context, subject, source string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySource, ok := s.subjects[subject]
	if !ok {
		bySource = make(map[string]Record)
		s.subjects[subject] = bySource
	}

	rec, ok := bySource[source]
	if !ok {
		rec = Record{Subject: subject, Source: source}
	}
	patch.apply(&rec)
	bySource[source] = rec
	return nil
}
