package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const inMemoryCap = 512

// InMemoryStore is a bounded in-process journal for local/dev use. Oldest
// entries are evicted once the cap is reached.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EndedAt.IsZero() {
		e.EndedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, e)
	if len(s.entries) > inMemoryCap {
		s.entries = s.entries[len(s.entries)-inMemoryCap:]
	}
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, siteID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}

	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if siteID != "" && s.entries[i].SiteID != siteID {
			continue
		}
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
