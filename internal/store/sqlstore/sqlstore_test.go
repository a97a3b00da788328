package sqlstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/openrights/registry/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := store.Migrate(s.DB(), store.DBSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestIdentityRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := store.IdentityRecord{
		Token:     "pid_1",
		Rights:    map[string]bool{"no_marketing": true, "anti_doxxing": false},
		Version:   1,
		CreatedAt: "2026-08-01T00:00:00Z",
		UpdatedAt: "2026-08-01T00:00:00Z",
	}
	if err := s.InsertIdentity(rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertIdentity(rec); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, ok := s.GetIdentity("pid_1")
	if !ok {
		t.Fatalf("get failed")
	}
	if !got.Rights["no_marketing"] || got.Rights["anti_doxxing"] {
		t.Fatalf("rights mismatch: %+v", got.Rights)
	}

	got.Version = 2
	got.Rights["anti_doxxing"] = true
	got.UpdatedAt = "2026-08-02T00:00:00Z"
	if err := s.UpdateIdentity(got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := s.GetIdentity("pid_1")
	if updated.Version != 2 || !updated.Rights["anti_doxxing"] {
		t.Fatalf("update not persisted: %+v", updated)
	}

	if err := s.UpdateIdentity(store.IdentityRecord{Token: "missing", Rights: map[string]bool{}}); !errors.Is(err, store.ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}

	n, err := s.CountIdentities()
	if err != nil || n != 1 {
		t.Fatalf("count: n=%d err=%v", n, err)
	}
}

func TestRequesterRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := store.RequesterRecord{
		RequesterID:      "req-1",
		Name:             "Acme Ltd",
		Contact:          "legal@acme.example",
		CredentialHash:   "hash-1",
		CredentialPrefix: "prr_1234",
		Status:           store.StatusActive,
		CreatedAt:        "2026-08-01T00:00:00Z",
	}
	if err := s.InsertRequester(rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertRequester(rec); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	byHash, ok := s.GetRequesterByCredentialHash("hash-1")
	if !ok || byHash.RequesterID != "req-1" {
		t.Fatalf("hash lookup mismatch: ok=%v rec=%+v", ok, byHash)
	}

	revokedAt := "2026-08-03T00:00:00Z"
	rec.Status = store.StatusRevoked
	rec.RevokedAt = &revokedAt
	if err := s.UpdateRequester(rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.GetRequester("req-1")
	if got.Status != store.StatusRevoked || got.RevokedAt == nil || *got.RevokedAt != revokedAt {
		t.Fatalf("revocation not persisted: %+v", got)
	}
}

func TestLedgerEntries(t *testing.T) {
	s := openTestStore(t)

	for i := int64(0); i < 4; i++ {
		entry := store.LedgerEntry{
			Sequence:         i,
			RequesterID:      "req-1",
			TokenFingerprint: "fp",
			Intent:           "general",
			Outcome:          "BLOCK",
			ReasonCode:       "ANTI_DOXXING_PROTECTED",
			Timestamp:        "2026-08-01T00:00:00Z",
			PrevHash:         "prev",
			EntryHash:        fmt.Sprintf("hash-%d", i),
		}
		if err := s.AppendEntry(entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	// duplicate sequence violates the primary key
	if err := s.AppendEntry(store.LedgerEntry{Sequence: 2}); err == nil {
		t.Fatalf("expected duplicate sequence to fail")
	}

	last, ok := s.LastEntry()
	if !ok || last.Sequence != 3 {
		t.Fatalf("last: ok=%v seq=%d", ok, last.Sequence)
	}

	entries, err := s.ListEntriesFrom(1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Sequence != 1 || entries[1].Sequence != 2 {
		t.Fatalf("cursor read mismatch: %+v", entries)
	}

	all, err := s.ListEntriesFrom(0, 0)
	if err != nil || len(all) != 4 {
		t.Fatalf("full read: err=%v n=%d", err, len(all))
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)

	wantErr := errors.New("boom")
	err := s.WithTx(func(tx store.Tx) error {
		if err := tx.InsertIdentity(store.IdentityRecord{Token: "pid_tx", Rights: map[string]bool{}}); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if _, ok := s.GetIdentity("pid_tx"); ok {
		t.Fatalf("rollback did not discard insert")
	}
}
