package memory

import (
	"context"
	"sync"
	"time"
)

// MemoryProcessedEventStore is the in-memory counterpart of the MySQL dedup
// table, for tests and local development.
type MemoryProcessedEventStore struct {
	mu     sync.RWMutex
	events map[string]time.Time
}

func NewMemoryProcessedEventStore() *MemoryProcessedEventStore {
	return &MemoryProcessedEventStore{events: make(map[string]time.Time)}
}

func (s *MemoryProcessedEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[eventID] = time.Now()
	return nil
}

func (s *MemoryProcessedEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.events[eventID]
	return exists, nil
}
