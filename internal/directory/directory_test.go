package directory

import (
	"errors"
	"strings"
	"testing"

	"github.com/openrights/registry/internal/store"
)

func newTestService() *Service {
	return NewService(store.NewInMemoryStore(), nil)
}

func TestRegisterIssuesPrefixedCredential(t *testing.T) {
	svc := newTestService()

	id, credential, err := svc.Register("Acme Ltd", "legal@acme.example")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.HasPrefix(credential, CredentialPrefix) {
		t.Fatalf("credential missing prefix: %s", credential)
	}
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("unexpected requester id: %s", id)
	}

	rec, err := svc.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.CredentialHash == credential || strings.Contains(rec.CredentialHash, credential) {
		t.Fatalf("raw credential persisted")
	}
	if rec.CredentialPrefix != credential[:8] {
		t.Fatalf("display prefix mismatch: %s", rec.CredentialPrefix)
	}
}

func TestRegisterRequiresName(t *testing.T) {
	svc := newTestService()
	if _, _, err := svc.Register("", "x@example.com"); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService()

	id, credential, err := svc.Register("Acme Ltd", "legal@acme.example")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := svc.Authenticate(credential)
	if err != nil || got != id {
		t.Fatalf("authenticate: id=%s err=%v", got, err)
	}

	for _, bad := range []string{"", "prr_bogus", credential + "x", credential[:len(credential)-1]} {
		if _, err := svc.Authenticate(bad); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("credential %q: expected ErrUnauthorized, got %v", bad, err)
		}
	}
}

func TestRevokeTakesEffectImmediately(t *testing.T) {
	svc := newTestService()

	id, credential, err := svc.Register("Acme Ltd", "legal@acme.example")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.Revoke(id); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Authenticate(credential); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked credential to be rejected, got %v", err)
	}

	// revoking twice is a no-op, not an error
	if err := svc.Revoke(id); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if err := svc.Revoke("req_none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRotateInvalidatesOldCredential(t *testing.T) {
	svc := newTestService()

	id, old, err := svc.Register("Acme Ltd", "legal@acme.example")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	fresh, err := svc.Rotate(id)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if fresh == old {
		t.Fatalf("rotation returned the same credential")
	}

	if _, err := svc.Authenticate(old); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old credential still authenticates")
	}
	got, err := svc.Authenticate(fresh)
	if err != nil || got != id {
		t.Fatalf("fresh credential rejected: id=%s err=%v", got, err)
	}

	if err := svc.Revoke(id); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Rotate(id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected rotate on revoked requester to fail, got %v", err)
	}
}
