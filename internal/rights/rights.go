package rights

import (
	"errors"
	"fmt"
)

// Right is one entry in the closed privacy-rights vocabulary.
type Right string

const (
	Erasure         Right = "erasure"
	NoSale          Right = "no_sale"
	NoProfiling     Right = "no_profiling"
	NoMarketing     Right = "no_marketing"
	DataPortability Right = "data_portability"
	AccessRequest   Right = "access_request"
	AntiDoxxing     Right = "anti_doxxing"
)

// Vocabulary lists every right in priority order. The order is a contract:
// when multiple rights block the same lookup, the earliest asserted one
// supplies the reason code.
var Vocabulary = []Right{
	AntiDoxxing,
	Erasure,
	NoSale,
	NoProfiling,
	NoMarketing,
	DataPortability,
	AccessRequest,
}

var ErrUnknownRight = errors.New("unknown right")

func ParseRight(name string) (Right, error) {
	for _, r := range Vocabulary {
		if string(r) == name {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRight, name)
}

// Set holds the asserted/unasserted state for every right in the vocabulary.
// Missing entries are unasserted.
type Set struct {
	flags map[Right]bool
}

func NewSet() Set {
	return Set{flags: map[Right]bool{}}
}

// ParseSet validates raw flag names against the vocabulary. Unknown names are
// rejected rather than ignored, so typos surface at the boundary.
func ParseSet(raw map[string]bool) (Set, error) {
	set := NewSet()
	for name, asserted := range raw {
		right, err := ParseRight(name)
		if err != nil {
			return Set{}, err
		}
		if asserted {
			set.flags[right] = true
		}
	}
	return set, nil
}

func (s Set) Asserted(r Right) bool {
	return s.flags[r]
}

func (s Set) Assert(r Right) Set {
	out := s.Clone()
	out.flags[r] = true
	return out
}

func (s Set) Clone() Set {
	out := NewSet()
	for r, v := range s.flags {
		if v {
			out.flags[r] = true
		}
	}
	return out
}

func (s Set) Equal(other Set) bool {
	for _, r := range Vocabulary {
		if s.Asserted(r) != other.Asserted(r) {
			return false
		}
	}
	return true
}

// Flags renders the set as a full map over the vocabulary, unasserted rights
// included. This is the storage and wire representation.
func (s Set) Flags() map[string]bool {
	out := make(map[string]bool, len(Vocabulary))
	for _, r := range Vocabulary {
		out[string(r)] = s.flags[r]
	}
	return out
}
