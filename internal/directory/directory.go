package directory

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openrights/registry/internal/store"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("requester not found")
)

// CredentialPrefix marks issued API credentials.
const CredentialPrefix = "prr_"

// Issuer mints opaque unguessable credentials.
type Issuer interface {
	Issue() (string, error)
}

// RandomIssuer issues "prr_" prefixed credentials from 32 random bytes.
type RandomIssuer struct{}

func (RandomIssuer) Issue() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return CredentialPrefix + hex.EncodeToString(raw), nil
}

type Service struct {
	store  store.Store
	issuer Issuer
	now    func() time.Time
}

func NewService(st store.Store, issuer Issuer) *Service {
	if issuer == nil {
		issuer = RandomIssuer{}
	}
	return &Service{store: st, issuer: issuer, now: time.Now}
}

// Register creates a requester and returns its one active credential. The
// raw credential is shown exactly once; only its hash is stored.
func (s *Service) Register(name, contact string) (requesterID, credential string, err error) {
	if name == "" {
		return "", "", fmt.Errorf("requester name is required")
	}
	credential, err = s.issuer.Issue()
	if err != nil {
		return "", "", err
	}
	requesterID = "req_" + uuid.NewString()
	rec := store.RequesterRecord{
		RequesterID:      requesterID,
		Name:             name,
		Contact:          contact,
		CredentialHash:   hashCredential(credential),
		CredentialPrefix: displayPrefix(credential),
		Status:           store.StatusActive,
		CreatedAt:        s.now().UTC().Format(time.RFC3339),
	}
	if err := s.store.InsertRequester(rec); err != nil {
		return "", "", err
	}
	return requesterID, credential, nil
}

// Authenticate resolves a presented credential to an active requester.
// Unknown, revoked, and malformed credentials all return ErrUnauthorized
// after the same amount of hash-and-compare work, so the error reveals
// nothing about which credentials exist.
func (s *Service) Authenticate(credential string) (string, error) {
	presented := hashCredential(credential)
	rec, ok := s.store.GetRequesterByCredentialHash(presented)
	stored := presented
	if ok {
		stored = rec.CredentialHash
	}
	match := subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
	if !ok || !match {
		return "", ErrUnauthorized
	}
	if rec.Status != store.StatusActive {
		return "", ErrUnauthorized
	}
	return rec.RequesterID, nil
}

// Revoke disables a requester. The change is read back on every subsequent
// authenticate, so it takes effect for the very next attempt.
func (s *Service) Revoke(requesterID string) error {
	return s.store.WithTx(func(tx store.Tx) error {
		rec, ok := tx.GetRequester(requesterID)
		if !ok {
			return ErrNotFound
		}
		if rec.Status == store.StatusRevoked {
			return nil
		}
		revokedAt := s.now().UTC().Format(time.RFC3339)
		rec.Status = store.StatusRevoked
		rec.RevokedAt = &revokedAt
		return tx.UpdateRequester(rec)
	})
}

// Rotate issues a replacement credential, atomically invalidating the old
// one. A requester holds exactly one active credential at a time.
func (s *Service) Rotate(requesterID string) (string, error) {
	credential, err := s.issuer.Issue()
	if err != nil {
		return "", err
	}
	err = s.store.WithTx(func(tx store.Tx) error {
		rec, ok := tx.GetRequester(requesterID)
		if !ok {
			return ErrNotFound
		}
		if rec.Status != store.StatusActive {
			return ErrUnauthorized
		}
		rec.CredentialHash = hashCredential(credential)
		rec.CredentialPrefix = displayPrefix(credential)
		return tx.UpdateRequester(rec)
	})
	if err != nil {
		return "", err
	}
	return credential, nil
}

func (s *Service) Get(requesterID string) (store.RequesterRecord, error) {
	rec, ok := s.store.GetRequester(requesterID)
	if !ok {
		return store.RequesterRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *Service) Count() (int64, error) {
	return s.store.CountRequesters()
}

func hashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

func displayPrefix(credential string) string {
	if len(credential) <= 8 {
		return credential
	}
	return credential[:8]
}
