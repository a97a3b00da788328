package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrSequenceGap  = errors.New("ledger sequence gap")
	ErrChainBroken  = errors.New("ledger hash chain broken")
	ErrHashMismatch = errors.New("ledger entry hash mismatch")
)

const verifyPageSize = 512

// Verify walks the full ledger and checks that sequences are gap-free from 0
// and that every entry's hash chains over its predecessor. A failure means an
// entry was mutated, removed, or inserted out of band.
func (l *Ledger) Verify() (int64, error) {
	var (
		next     int64
		prevHash = firstPrevHash
	)
	for {
		events, err := l.ReadFrom(next, verifyPageSize)
		if err != nil {
			return next, err
		}
		if len(events) == 0 {
			return next, nil
		}
		for _, event := range events {
			if event.Sequence != next {
				return next, fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, event.Sequence, next)
			}
			if event.PrevHash != prevHash {
				return next, fmt.Errorf("%w at sequence %d", ErrChainBroken, event.Sequence)
			}
			computed, err := EntryHash(event)
			if err != nil {
				return next, err
			}
			if computed != event.EntryHash {
				return next, fmt.Errorf("%w at sequence %d", ErrHashMismatch, event.Sequence)
			}
			prevHash = event.EntryHash
			next = event.Sequence + 1
		}
	}
}
