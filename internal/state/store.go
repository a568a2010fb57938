package state

import (
	"context"
	"sync"
)

// Store persists consumer-side watcher state so a restart neither re-surfaces
// already-seen events nor loses the polling position. Storage-engine
// agnostic: logical keys are the last-seen sequence, the processed-event-key
// set (order preserved, oldest first) and a bounded notification history.
type Store interface {
	LoadCursor(ctx context.Context) (int64, error)
	SaveCursor(ctx context.Context, cursor int64) error

	LoadKeys(ctx context.Context) ([]string, error)
	SaveKeys(ctx context.Context, keys []string) error

	AppendHistory(ctx context.Context, entry []byte, max int) error
}

// MemoryStore keeps watcher state in process memory. Used by tests and by
// one-shot runs where durability does not matter.
type MemoryStore struct {
	mu      sync.Mutex
	cursor  int64
	keys    []string
	history [][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadCursor(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cursor, nil
}

func (s *MemoryStore) SaveCursor(_ context.Context, cursor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursor = cursor
	return nil
}

func (s *MemoryStore) LoadKeys(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out, nil
}

func (s *MemoryStore) SaveKeys(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys = append(s.keys[:0], keys...)
	return nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, entry []byte, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, entry)
	if max > 0 && len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	return nil
}

// History returns the retained entries, oldest first.
func (s *MemoryStore) History() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(s.history))
	copy(out, s.history)
	return out
}
