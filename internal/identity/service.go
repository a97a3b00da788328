package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openrights/registry/internal/rights"
	"github.com/openrights/registry/internal/store"
)

var (
	ErrNotFound      = errors.New("identity not found")
	ErrAlreadyExists = errors.New("identity already exists")
)

// Record is one identity and its current rights. Token is opaque and
// immutable; Version increments by exactly one on every rights mutation.
type Record struct {
	Token     string
	Rights    rights.Set
	Version   int64
	CreatedAt string
	UpdatedAt string
}

// Minter produces collision-resistant opaque identity tokens.
type Minter interface {
	MintToken() string
}

// UUIDMinter mints "pid_" prefixed tokens from random UUIDs.
type UUIDMinter struct{}

func (UUIDMinter) MintToken() string {
	return "pid_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type Service struct {
	store store.Store
	mint  Minter
	now   func() time.Time
}

func NewService(st store.Store, mint Minter) *Service {
	if mint == nil {
		mint = UUIDMinter{}
	}
	return &Service{store: st, mint: mint, now: time.Now}
}

// Register mints a fresh token and creates its rights record.
func (s *Service) Register(set rights.Set) (Record, error) {
	return s.Create(s.mint.MintToken(), set)
}

// Create stores a rights record under token. Fails with ErrAlreadyExists when
// the token is taken; tokens are never reused.
func (s *Service) Create(token string, set rights.Set) (Record, error) {
	if token == "" {
		return Record{}, fmt.Errorf("empty token")
	}
	now := s.now().UTC().Format(time.RFC3339)
	rec := store.IdentityRecord{
		Token:     token,
		Rights:    set.Flags(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertIdentity(rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return Record{}, ErrAlreadyExists
		}
		return Record{}, err
	}
	return fromStored(rec)
}

func (s *Service) Get(token string) (Record, error) {
	rec, ok := s.store.GetIdentity(token)
	if !ok {
		return Record{}, ErrNotFound
	}
	return fromStored(rec)
}

// UpdateRights replaces the rights set and bumps the version by exactly one.
// The read and write share one store transaction, so concurrent updates to
// the same token serialize and no version is ever skipped or repeated.
func (s *Service) UpdateRights(token string, set rights.Set) (Record, error) {
	var updated store.IdentityRecord
	err := s.store.WithTx(func(tx store.Tx) error {
		current, ok := tx.GetIdentity(token)
		if !ok {
			return ErrNotFound
		}
		updated = store.IdentityRecord{
			Token:     current.Token,
			Rights:    set.Flags(),
			Version:   current.Version + 1,
			CreatedAt: current.CreatedAt,
			UpdatedAt: s.now().UTC().Format(time.RFC3339),
		}
		return tx.UpdateIdentity(updated)
	})
	if err != nil {
		if errors.Is(err, store.ErrMissing) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return fromStored(updated)
}

func (s *Service) Count() (int64, error) {
	return s.store.CountIdentities()
}

func fromStored(rec store.IdentityRecord) (Record, error) {
	set, err := rights.ParseSet(rec.Rights)
	if err != nil {
		return Record{}, fmt.Errorf("stored rights for %s: %w", rec.Token, err)
	}
	return Record{
		Token:     rec.Token,
		Rights:    set,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
