package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openrights/registry/internal/crypto"
	"github.com/openrights/registry/internal/store"
)

// Outcome values recorded per decision event.
const (
	OutcomeAllow = "ALLOW"
	OutcomeBlock = "BLOCK"
)

// ErrWriteFailed is fatal: the decision that triggered the append must not be
// reported to the requester, and the caller retries the whole decision.
var ErrWriteFailed = errors.New("ledger write failed")

// Event is one appended decision. Events are write-once; Sequence is gap-free
// and strictly increasing from 0, and EntryHash chains over PrevHash.
type Event = store.LedgerEntry

// Draft is an event before sequencing. Token is the raw identity target; it
// is fingerprinted during append and never stored.
type Draft struct {
	RequesterID string
	Token       string
	Intent      string
	Outcome     string
	ReasonCode  string
}

const firstPrevHash = "sha256:genesis"

// DefaultAppendTimeout bounds the durability write.
const DefaultAppendTimeout = 5 * time.Second

type Ledger struct {
	store   store.Store
	fp      *Fingerprinter
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	nextSeq  int64
	lastHash string
	poisoned error
	subs     []chan int64
}

// New opens the ledger over st, recovering the next sequence and chain head
// from the last durable entry.
func New(st store.Store, fp *Fingerprinter, timeout time.Duration) (*Ledger, error) {
	if fp == nil {
		return nil, fmt.Errorf("fingerprinter is required")
	}
	if timeout <= 0 {
		timeout = DefaultAppendTimeout
	}
	l := &Ledger{store: st, fp: fp, timeout: timeout, now: time.Now, lastHash: firstPrevHash}
	if last, ok := st.LastEntry(); ok {
		l.nextSeq = last.Sequence + 1
		l.lastHash = last.EntryHash
	}
	return l, nil
}

// Append assigns the next sequence to draft and writes it durably. It returns
// only after the store transaction commits; the caller may then report the
// decision. Caller cancellation is detached once the append begins, so an
// appended entry is always complete; a bounded timeout applies to the
// durability write instead. A timeout or storage failure surfaces as
// ErrWriteFailed and poisons the ledger, because the fate of the in-flight
// write is unknown and a gap or duplicate sequence must never be risked.
func (l *Ledger) Append(ctx context.Context, draft Draft) (Event, error) {
	if draft.Outcome != OutcomeAllow && draft.Outcome != OutcomeBlock {
		return Event{}, fmt.Errorf("invalid outcome %q", draft.Outcome)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.poisoned != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrWriteFailed, l.poisoned)
	}

	entry := Event{
		Sequence:         l.nextSeq,
		RequesterID:      draft.RequesterID,
		TokenFingerprint: l.fp.Fingerprint(draft.Token),
		Intent:           draft.Intent,
		Outcome:          draft.Outcome,
		ReasonCode:       draft.ReasonCode,
		Timestamp:        l.now().UTC().Format(time.RFC3339Nano),
		PrevHash:         l.lastHash,
	}
	hash, err := EntryHash(entry)
	if err != nil {
		return Event{}, err
	}
	entry.EntryHash = hash

	done := make(chan error, 1)
	go func() {
		done <- l.store.WithTx(func(tx store.Tx) error {
			return tx.AppendEntry(entry)
		})
	}()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			l.poisoned = err
			return Event{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
	case <-timer.C:
		err := fmt.Errorf("durability write exceeded %s", l.timeout)
		l.poisoned = err
		return Event{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	l.nextSeq = entry.Sequence + 1
	l.lastHash = entry.EntryHash
	l.notify(entry.Sequence)
	return entry, nil
}

// ReadFrom returns events in order starting at seq. Restartable from any
// sequence; limit <= 0 reads to the end.
func (l *Ledger) ReadFrom(seq int64, limit int) ([]Event, error) {
	return l.store.ListEntriesFrom(seq, limit)
}

// Subscribe returns a channel that receives the sequence of newly appended
// entries. Delivery is best-effort (buffered, non-blocking send); consumers
// catch up by cursor, not by counting notifications.
func (l *Ledger) Subscribe() <-chan int64 {
	ch := make(chan int64, 1)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}

func (l *Ledger) notify(seq int64) {
	for _, ch := range l.subs {
		select {
		case ch <- seq:
		default:
		}
	}
}

// EntryHash computes the chained digest of an entry, excluding the hash
// field itself.
func EntryHash(e Event) (string, error) {
	canonical, err := crypto.Canonicalize(map[string]any{
		"sequence":          e.Sequence,
		"requester_id":      e.RequesterID,
		"token_fingerprint": e.TokenFingerprint,
		"intent":            e.Intent,
		"outcome":           e.Outcome,
		"reason_code":       e.ReasonCode,
		"timestamp":         e.Timestamp,
		"prev_hash":         e.PrevHash,
	})
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}
