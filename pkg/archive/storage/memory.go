package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/relay/pkg/archive"
)

// MemoryStorage implements archive.Storage with an in-memory map.
type MemoryStorage struct {
	records map[string]*archive.Transcript
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*archive.Transcript),
	}
}

// Store saves a copy of t.
func (s *MemoryStorage) Store(ctx context.Context, t *archive.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *t
	s.records[t.ID] = &c
	return nil
}

// Query returns copies of the matching transcripts, newest first.
func (s *MemoryStorage) Query(ctx context.Context, q *archive.Query) ([]*archive.Transcript, error) {
	if q == nil {
		q = &archive.Query{}
	}

	s.mu.RLock()
	results := make([]*archive.Transcript, 0, len(s.records))
	for _, t := range s.records {
		if matches(t, q) {
			c := *t
			results = append(results, &c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].CompletedAt.After(results[j].CompletedAt)
	})
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// Get returns a copy of the transcript with the given id.
func (s *MemoryStorage) Get(ctx context.Context, id string) (*archive.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.records[id]
	if !ok {
		return nil, archive.ErrNotFound
	}
	c := *t
	return &c, nil
}

// DeleteBefore removes transcripts completed before cutoff.
func (s *MemoryStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, t := range s.records {
		if t.CompletedAt.Before(cutoff) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of stored transcripts.
func (s *MemoryStorage) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

func matches(t *archive.Transcript, q *archive.Query) bool {
	if q.SessionID != "" && t.SessionID != q.SessionID {
		return false
	}
	if q.Model != "" && t.Model != q.Model {
		return false
	}
	if q.Since != nil && t.CompletedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && t.CompletedAt.After(*q.Until) {
		return false
	}
	return true
}
