package transparency

import (
	"fmt"
	"sync"

	"github.com/openrights/registry/internal/ledger"
	"github.com/openrights/registry/internal/store"
)

// Snapshot is a point-in-time view of the transparency counters. Lookup
// counters always describe a consistent prefix of the ledger, ending at
// LedgerSequence (exclusive).
type Snapshot struct {
	TotalIdentities int64            `json:"total_users"`
	TotalRequesters int64            `json:"total_companies"`
	TotalLookups    int64            `json:"total_lookups"`
	BlockedLookups  int64            `json:"blocked_lookups"`
	ProtectionRate  float64          `json:"protection_rate"`
	ByReason        map[string]int64 `json:"blocked_by_reason"`
	LedgerSequence  int64            `json:"ledger_sequence"`
}

// Aggregator folds ledger events into running counters. Apply is the sole
// mutation path and consumes events strictly in ledger order, so the state is
// always the fold of a prefix and replay from 0 reproduces it exactly.
type Aggregator struct {
	st stores

	mu       sync.Mutex
	cursor   int64
	total    int64
	blocked  int64
	byReason map[string]int64
}

// stores is the slice of the store the aggregator needs for identity and
// requester totals.
type stores interface {
	CountIdentities() (int64, error)
	CountRequesters() (int64, error)
}

var _ stores = (store.Store)(nil)

func NewAggregator(st stores) *Aggregator {
	return &Aggregator{st: st, byReason: make(map[string]int64)}
}

// Apply folds one event. Events before the cursor were already counted and
// are skipped (replay-safe); an event past the cursor means the caller
// skipped ledger entries and is refused.
func (a *Aggregator) Apply(event ledger.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyLocked(event)
}

func (a *Aggregator) applyLocked(event ledger.Event) error {
	if event.Sequence < a.cursor {
		return nil
	}
	if event.Sequence > a.cursor {
		return fmt.Errorf("out-of-order event: got sequence %d, cursor %d", event.Sequence, a.cursor)
	}
	a.total++
	if event.Outcome == ledger.OutcomeBlock {
		a.blocked++
		a.byReason[event.ReasonCode]++
	}
	a.cursor = event.Sequence + 1
	return nil
}

// Cursor is the next sequence the aggregator will consume.
func (a *Aggregator) Cursor() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// CatchUp drains src from the cursor to the current ledger tail.
func (a *Aggregator) CatchUp(src EventSource) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		events, err := src.ReadFrom(a.cursor, catchUpPageSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		for _, event := range events {
			if err := a.applyLocked(event); err != nil {
				return err
			}
		}
	}
}

// Reset discards the fold state. Used before a full replay.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cursor = 0
	a.total = 0
	a.blocked = 0
	a.byReason = make(map[string]int64)
}

// Rebuild replays the full ledger from sequence 0. The result is
// bit-identical to incremental accumulation over the same prefix.
func (a *Aggregator) Rebuild(src EventSource) error {
	a.Reset()
	return a.CatchUp(src)
}

// Snapshot reports the counters for the prefix consumed so far, combined with
// current identity and requester totals from the store.
func (a *Aggregator) Snapshot() (Snapshot, error) {
	identities, err := a.st.CountIdentities()
	if err != nil {
		return Snapshot{}, err
	}
	requesters, err := a.st.CountRequesters()
	if err != nil {
		return Snapshot{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		TotalIdentities: identities,
		TotalRequesters: requesters,
		TotalLookups:    a.total,
		BlockedLookups:  a.blocked,
		ByReason:        make(map[string]int64, len(a.byReason)),
		LedgerSequence:  a.cursor,
	}
	for reason, n := range a.byReason {
		snap.ByReason[reason] = n
	}
	if a.total > 0 {
		snap.ProtectionRate = float64(a.blocked) / float64(a.total)
	}
	return snap, nil
}

const catchUpPageSize = 256

// EventSource is the ledger surface the aggregator reads.
type EventSource interface {
	ReadFrom(seq int64, limit int) ([]ledger.Event, error)
}
