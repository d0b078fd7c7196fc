package idempotency

import (
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get returns the record for a key, or ErrNotFound.
func (s *MemoryStore) Get(key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Put stores a record.
func (s *MemoryStore) Put(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.Key] = &cp
	return nil
}

// DeleteOlderThan evicts expired records.
func (s *MemoryStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}
