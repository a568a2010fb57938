package tracker

import (
	"context"
	"sync"
	"testing"

	"github.com/complyport/screening-relay/internal/flowtype"
	"github.com/complyport/screening-relay/internal/model"
	"github.com/complyport/screening-relay/internal/state"
)

type capture struct {
	mu       sync.Mutex
	surfaced []Notification
}

func (c *capture) notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.surfaced = append(c.surfaced, n)
}

func (c *capture) all() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, len(c.surfaced))
	copy(out, c.surfaced)
	return out
}

func newTestTracker(t *testing.T, store *state.MemoryStore, flows flowtype.Store) (*Tracker, *capture) {
	t.Helper()

	sink := &capture{}
	trk, err := New(context.Background(), Options{
		Store:   store,
		Flows:   flows,
		Source:  "complyadvantage",
		MaxKeys: 3,
		Notify:  sink.notify,
	})
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}

	return trk, sink
}

func screeningEvent(seq int64, customer, query string) model.Event {
	return model.Event{
		Sequence:      seq,
		CustomerID:    customer,
		SearchQueryID: query,
		Source:        "complyadvantage",
	}
}

func TestOnBatchIsIdempotent(t *testing.T) {
	trk, sink := newTestTracker(t, state.NewMemoryStore(), flowtype.NewMemoryStore())
	ctx := context.Background()

	batch := []model.Event{
		screeningEvent(1, "42", "Q1"),
		screeningEvent(2, "43", "Q2"),
	}

	if err := trk.OnBatch(ctx, batch); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := trk.OnBatch(ctx, batch); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	if len(sink.all()) != 2 {
		t.Fatalf("expected each event surfaced exactly once, got %d", len(sink.all()))
	}
	if trk.Cursor() != 2 {
		t.Fatalf("expected cursor 2 got %d", trk.Cursor())
	}
}

func TestOnBatchAppliesOutOfOrderBatchInSequenceOrder(t *testing.T) {
	trk, sink := newTestTracker(t, state.NewMemoryStore(), flowtype.NewMemoryStore())

	batch := []model.Event{
		screeningEvent(3, "c", "Q3"),
		screeningEvent(1, "a", "Q1"),
		screeningEvent(2, "b", "Q2"),
	}
	if err := trk.OnBatch(context.Background(), batch); err != nil {
		t.Fatalf("batch: %v", err)
	}

	if len(sink.all()) != 3 {
		t.Fatalf("expected 3 surfaced got %d", len(sink.all()))
	}
	for i, n := range sink.all() {
		if n.Event.Sequence != int64(i+1) {
			t.Fatalf("surfaced out of order: %v", sink.all())
		}
	}
}

func TestContentDedupOverridesSequenceFreshness(t *testing.T) {
	trk, sink := newTestTracker(t, state.NewMemoryStore(), flowtype.NewMemoryStore())
	ctx := context.Background()

	if err := trk.OnBatch(ctx, []model.Event{screeningEvent(1, "42", "Q1")}); err != nil {
		t.Fatalf("first: %v", err)
	}
	// same logical event re-ingested under a fresh sequence (relay restart)
	if err := trk.OnBatch(ctx, []model.Event{screeningEvent(5, "42", "Q1")}); err != nil {
		t.Fatalf("second: %v", err)
	}

	if len(sink.all()) != 1 {
		t.Fatalf("duplicate key surfaced twice")
	}
	if trk.Cursor() != 5 {
		t.Fatalf("cursor must advance past the duplicate, got %d", trk.Cursor())
	}
}

func TestAsyncFlowIsArchivedNotSurfaced(t *testing.T) {
	store := state.NewMemoryStore()
	flows := flowtype.NewMemoryStore()
	flows.Set("42", flowtype.FlowAsync)

	trk, sink := newTestTracker(t, store, flows)

	if err := trk.OnBatch(context.Background(), []model.Event{screeningEvent(1, "42", "Q1")}); err != nil {
		t.Fatalf("batch: %v", err)
	}

	if len(sink.all()) != 0 {
		t.Fatalf("automated flow event must not interrupt the operator")
	}
	if len(store.History()) != 1 {
		t.Fatalf("suppressed event must still be recorded in history")
	}
	if trk.Cursor() != 1 {
		t.Fatalf("suppressed event still advances the cursor")
	}
}

func TestSuppressionOnlyAppliesToScreeningSource(t *testing.T) {
	flows := flowtype.NewMemoryStore()
	flows.Set("42", flowtype.FlowAsync)

	trk, sink := newTestTracker(t, state.NewMemoryStore(), flows)

	evt := screeningEvent(1, "42", "Q1")
	evt.Source = "synthetic"
	if err := trk.OnBatch(context.Background(), []model.Event{evt}); err != nil {
		t.Fatalf("batch: %v", err)
	}

	if len(sink.all()) != 1 {
		t.Fatalf("non-screening source must not be suppressed")
	}
}

func TestSyntheticConnectedEventNeverMovesCursor(t *testing.T) {
	trk, sink := newTestTracker(t, state.NewMemoryStore(), flowtype.NewMemoryStore())

	connected := model.Event{Sequence: 0, Source: model.SourceRelay}
	if err := trk.OnBatch(context.Background(), []model.Event{connected}); err != nil {
		t.Fatalf("batch: %v", err)
	}

	if trk.Cursor() != 0 {
		t.Fatalf("cursor moved on synthetic event")
	}
	if len(sink.all()) != 0 {
		t.Fatalf("synthetic event surfaced")
	}
}

func TestProcessedKeySetIsBounded(t *testing.T) {
	trk, sink := newTestTracker(t, state.NewMemoryStore(), flowtype.NewMemoryStore())
	ctx := context.Background()

	// maxKeys is 3; push 4 distinct keys, evicting the first
	for i := int64(1); i <= 4; i++ {
		if err := trk.OnBatch(ctx, []model.Event{screeningEvent(i, "c", string(rune('A'+i)))}); err != nil {
			t.Fatalf("batch %d: %v", i, err)
		}
	}

	if len(trk.keys) != 3 {
		t.Fatalf("expected 3 retained keys got %d", len(trk.keys))
	}
	if len(sink.all()) != 4 {
		t.Fatalf("expected 4 surfaced got %d", len(sink.all()))
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	store := state.NewMemoryStore()
	flows := flowtype.NewMemoryStore()
	ctx := context.Background()

	trk, _ := newTestTracker(t, store, flows)
	if err := trk.OnBatch(ctx, []model.Event{screeningEvent(1, "42", "Q1")}); err != nil {
		t.Fatalf("batch: %v", err)
	}

	// a reload re-surfaces nothing and keeps the polling position
	trk2, sink2 := newTestTracker(t, store, flows)
	if trk2.Cursor() != 1 {
		t.Fatalf("cursor lost on restart: %d", trk2.Cursor())
	}

	if err := trk2.OnBatch(ctx, []model.Event{screeningEvent(1, "42", "Q1"), screeningEvent(4, "42", "Q1")}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(sink2.all()) != 0 {
		t.Fatalf("restart replayed already-seen events")
	}
}
