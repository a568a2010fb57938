package tracker

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/complyport/screening-relay/internal/flowtype"
	"github.com/complyport/screening-relay/internal/model"
	"github.com/complyport/screening-relay/internal/state"
	"github.com/complyport/screening-relay/internal/util"
)

const (
	DefaultMaxKeys    = 50
	DefaultMaxHistory = 100
)

// Notification is one history entry: a surfaced or silently archived event.
type Notification struct {
	ID         string      `json:"id"`
	Event      model.Event `json:"event"`
	Suppressed bool        `json:"suppressed"`
	At         time.Time   `json:"at"`
}

// Options configure a Tracker.
type Options struct {
	Store      state.Store
	Flows      flowtype.Store
	Source     string // producer tag identifying real screening completions
	MaxKeys    int
	MaxHistory int
	Notify     func(Notification) // interactive surface; nil logs instead
	Logger     *zap.Logger
}

// Tracker is the consumer-side state machine. It maintains a durable cursor,
// deduplicates events by sequence and by composite (customerId, searchQueryId)
// key, and decides whether an event belongs to a suppressed automated flow
// before surfacing it. Poll and push sources feed the same OnBatch, so
// switching modes mid-session replays nothing.
type Tracker struct {
	store      state.Store
	flows      flowtype.Store
	source     string
	maxKeys    int
	maxHistory int
	notify     func(Notification)
	logger     *zap.Logger

	cursor int64
	keys   []string // oldest first
	keySet map[string]struct{}
}

// New loads the persisted cursor and processed-key set and returns a ready
// tracker.
func New(ctx context.Context, opts Options) (*Tracker, error) {
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = DefaultMaxKeys
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cursor, err := opts.Store.LoadCursor(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := opts.Store.LoadKeys(ctx)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		store:      opts.Store,
		flows:      opts.Flows,
		source:     opts.Source,
		maxKeys:    opts.MaxKeys,
		maxHistory: opts.MaxHistory,
		notify:     opts.Notify,
		logger:     opts.Logger,
		cursor:     cursor,
		keys:       keys,
		keySet:     make(map[string]struct{}, len(keys)),
	}
	for _, k := range keys {
		t.keySet[k] = struct{}{}
	}

	return t, nil
}

// Cursor returns the highest sequence already surfaced or archived.
func (t *Tracker) Cursor() int64 { return t.cursor }

// OnBatch applies a batch of events in ascending sequence order. Per event:
// skip if the sequence is already behind the cursor, skip if the composite
// key was processed before (covers re-ingestion with a fresh sequence after
// a relay restart), otherwise advance the cursor, record the key, classify
// and surface or archive. Persistence failures are returned after local
// state is already consistent; the caller retries on the next cycle.
func (t *Tracker) OnBatch(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]model.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	var firstErr error
	for _, evt := range sorted {
		if err := t.onEvent(ctx, evt); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (t *Tracker) onEvent(ctx context.Context, evt model.Event) error {
	// synthetic connection events never touch the cursor
	if !evt.Domain() || evt.Source == model.SourceRelay {
		return nil
	}

	if evt.Sequence <= t.cursor {
		return nil
	}

	key := evt.Key()
	if _, seen := t.keySet[key]; seen {
		// same logical event under a new sequence: advance past it silently
		t.cursor = evt.Sequence
		return t.store.SaveCursor(ctx, t.cursor)
	}

	t.cursor = evt.Sequence
	t.rememberKey(key)

	if err := t.store.SaveCursor(ctx, t.cursor); err != nil {
		return err
	}
	if err := t.store.SaveKeys(ctx, t.keys); err != nil {
		return err
	}

	n := Notification{
		ID:         util.NewID(),
		Event:      evt,
		Suppressed: t.suppressed(ctx, evt),
		At:         time.Now().UTC(),
	}

	entry, err := json.Marshal(n)
	if err == nil {
		if herr := t.store.AppendHistory(ctx, entry, t.maxHistory); herr != nil {
			t.logger.Warn("history append failed", zap.Error(herr))
		}
	}

	if n.Suppressed {
		t.logger.Info("event archived (automated flow)",
			zap.Int64("sequence", evt.Sequence),
			zap.String("customer_id", evt.CustomerID),
		)
		return nil
	}

	if t.notify != nil {
		t.notify(n)
	} else {
		t.logger.Info("screening event",
			zap.Int64("sequence", evt.Sequence),
			zap.String("customer_id", evt.CustomerID),
			zap.String("sanction_decision", evt.Flags.SanctionDecision.String()),
		)
	}

	return nil
}

// suppressed applies the automated-flow rule: real screening completions
// whose originating request came through the async path are recorded in
// history but never interrupt the operator. Lookup errors count as unknown.
func (t *Tracker) suppressed(ctx context.Context, evt model.Event) bool {
	if t.flows == nil || evt.Source != t.source {
		return false
	}

	ft, err := t.flows.Lookup(ctx, evt.CustomerID)
	if err != nil {
		t.logger.Warn("flow type lookup failed",
			zap.Error(err),
			zap.String("customer_id", evt.CustomerID),
		)
		return false
	}

	return ft == flowtype.FlowAsync
}

func (t *Tracker) rememberKey(key string) {
	t.keys = append(t.keys, key)
	t.keySet[key] = struct{}{}

	for len(t.keys) > t.maxKeys {
		evicted := t.keys[0]
		t.keys = t.keys[1:]
		delete(t.keySet, evicted)
	}
}
