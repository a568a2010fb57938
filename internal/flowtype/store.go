package flowtype

import (
	"context"
	"sync"
)

// FlowType says whether a customer's onboarding was submitted via the
// interactive path or the fully-automated ("async") one. Async flows resolve
// their own continuation, so their screening events must not interrupt the
// operator.
type FlowType string

const (
	FlowInteractive FlowType = "interactive"
	FlowAsync       FlowType = "async"
	FlowUnknown     FlowType = "unknown"
)

func (f FlowType) String() string { return string(f) }

func (f FlowType) Valid() bool {
	return f == FlowInteractive || f == FlowAsync || f == FlowUnknown
}

// Store resolves the flow type of the originating onboarding request by
// customer id. Best effort: unknown is a valid answer and lookup errors are
// treated as unknown by callers.
type Store interface {
	Lookup(ctx context.Context, customerID string) (FlowType, error)
}

// MemoryStore is the in-process implementation, used in tests and when no
// MySQL DSN is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	flows map[string]FlowType
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flows: make(map[string]FlowType)}
}

// Set records the flow type for a customer; the latest write wins.
func (s *MemoryStore) Set(customerID string, ft FlowType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flows[customerID] = ft
}

func (s *MemoryStore) Lookup(_ context.Context, customerID string) (FlowType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ft, ok := s.flows[customerID]; ok {
		return ft, nil
	}
	return FlowUnknown, nil
}
