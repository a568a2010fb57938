package flowtype

import (
	"context"
	"testing"
)

func TestMemoryStoreLatestWriteWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set("42", FlowInteractive)
	s.Set("42", FlowAsync)

	ft, err := s.Lookup(ctx, "42")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ft != FlowAsync {
		t.Fatalf("expected async got %q", ft)
	}
}

func TestMemoryStoreUnknownCustomer(t *testing.T) {
	s := NewMemoryStore()

	ft, err := s.Lookup(context.Background(), "missing")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ft != FlowUnknown {
		t.Fatalf("expected unknown got %q", ft)
	}
}

func TestFlowTypeValid(t *testing.T) {
	for _, ft := range []FlowType{FlowInteractive, FlowAsync, FlowUnknown} {
		if !ft.Valid() {
			t.Fatalf("%q should be valid", ft)
		}
	}
	if FlowType("batch").Valid() {
		t.Fatalf("arbitrary value should not be valid")
	}
}
