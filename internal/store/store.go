package store

import "errors"

var (
	ErrDuplicate = errors.New("record already exists")
	ErrMissing   = errors.New("record not found")
)

// Requester status values.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

// IdentityRecord is the stored rights record for one identity token.
// Rights always carries the full vocabulary; timestamps are RFC3339 UTC.
type IdentityRecord struct {
	Token     string
	Rights    map[string]bool
	Version   int64
	CreatedAt string
	UpdatedAt string
}

// RequesterRecord is a registered requesting party. The raw credential is
// never stored, only its SHA-256 hash and a short display prefix.
type RequesterRecord struct {
	RequesterID      string
	Name             string
	Contact          string
	CredentialHash   string
	CredentialPrefix string
	Status           string
	CreatedAt        string
	RevokedAt        *string
}

// LedgerEntry is one append-only decision event. Sequence is gap-free and
// strictly increasing from 0 within a ledger instance; EntryHash chains over
// PrevHash.
type LedgerEntry struct {
	Sequence         int64
	RequesterID      string
	TokenFingerprint string
	Intent           string
	Outcome          string
	ReasonCode       string
	Timestamp        string
	PrevHash         string
	EntryHash        string
}

type Store interface {
	WithTx(fn func(Tx) error) error

	InsertIdentity(rec IdentityRecord) error
	GetIdentity(token string) (IdentityRecord, bool)
	UpdateIdentity(rec IdentityRecord) error
	CountIdentities() (int64, error)

	InsertRequester(rec RequesterRecord) error
	GetRequester(requesterID string) (RequesterRecord, bool)
	GetRequesterByCredentialHash(hash string) (RequesterRecord, bool)
	UpdateRequester(rec RequesterRecord) error
	CountRequesters() (int64, error)

	AppendEntry(entry LedgerEntry) error
	LastEntry() (LedgerEntry, bool)
	ListEntriesFrom(seq int64, limit int) ([]LedgerEntry, error)
}

type Tx interface {
	InsertIdentity(rec IdentityRecord) error
	GetIdentity(token string) (IdentityRecord, bool)
	UpdateIdentity(rec IdentityRecord) error

	InsertRequester(rec RequesterRecord) error
	GetRequester(requesterID string) (RequesterRecord, bool)
	GetRequesterByCredentialHash(hash string) (RequesterRecord, bool)
	UpdateRequester(rec RequesterRecord) error

	AppendEntry(entry LedgerEntry) error
	LastEntry() (LedgerEntry, bool)
}
