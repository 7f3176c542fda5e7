package deadletter

import (
	"context"
	"sync"
)

// DefaultMaxSize bounds a MemoryStore created with a non-positive size.
const DefaultMaxSize = 10000

// MemoryStore keeps records in memory.
// Once MaxSize records are held, the oldest record is evicted.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	maxSize int
	closed  bool
}

// NewMemoryStore creates a memory store holding at most maxSize records.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &MemoryStore{maxSize: maxSize}
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if len(s.records) >= s.maxSize {
		// Drop the oldest
		copy(s.records, s.records[1:])
		s.records = s.records[:len(s.records)-1]
	}
	if rec.Payload != nil {
		rec.Payload = append([]byte(nil), rec.Payload...)
	}
	s.records = append(s.records, rec)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]Record, error) {
	return s.filter("", limit)
}

// ListByKind implements Store.
func (s *MemoryStore) ListByKind(_ context.Context, kind string, limit int) ([]Record, error) {
	return s.filter(kind, limit)
}

func (s *MemoryStore) filter(kind string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	result := make([]Record, 0)
	for _, rec := range s.records {
		if kind != "" && rec.Kind != kind {
			continue
		}
		result = append(result, rec)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	return len(s.records), nil
}

// CountByKind implements Store.
func (s *MemoryStore) CountByKind(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	counts := make(map[string]int)
	for _, rec := range s.records {
		counts[rec.Kind]++
	}
	return counts, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}
