package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Fingerprinter derives one-way token fingerprints for ledger entries. The
// derivation is keyed, so a ledger reader cannot confirm a guessed token
// without the registry's fingerprint key.
type Fingerprinter struct {
	key [32]byte
}

// NewFingerprinter accepts a key of any length and stretches it to the
// 32 bytes blake3 keyed hashing requires.
func NewFingerprinter(key []byte) (*Fingerprinter, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("fingerprint key is required")
	}
	return &Fingerprinter{key: sha256.Sum256(key)}, nil
}

// Fingerprint maps a raw identity token to its ledger representation.
// Deterministic and collision-resistant; never reversible.
func (f *Fingerprinter) Fingerprint(token string) string {
	hasher, err := blake3.NewKeyed(f.key[:])
	if err != nil {
		// NewKeyed only fails on a wrong key length, which the fixed-size
		// array rules out.
		panic(err)
	}
	_, _ = hasher.Write([]byte(token))
	return "b3:" + hex.EncodeToString(hasher.Sum(nil))
}
