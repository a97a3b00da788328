package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"github.com/openrights/registry/internal/store"
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) WithTx(fn func(store.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (s *Store) InsertIdentity(rec store.IdentityRecord) error {
	return s.WithTx(func(tx store.Tx) error { return tx.InsertIdentity(rec) })
}

func (s *Store) GetIdentity(token string) (store.IdentityRecord, bool) {
	return getIdentity(s.db, token)
}

func (s *Store) UpdateIdentity(rec store.IdentityRecord) error {
	return s.WithTx(func(tx store.Tx) error { return tx.UpdateIdentity(rec) })
}

func (s *Store) CountIdentities() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM identities`).Scan(&n)
	return n, err
}

func (s *Store) InsertRequester(rec store.RequesterRecord) error {
	return s.WithTx(func(tx store.Tx) error { return tx.InsertRequester(rec) })
}

func (s *Store) GetRequester(requesterID string) (store.RequesterRecord, bool) {
	return getRequester(s.db, `SELECT requester_id, name, contact, credential_hash, credential_prefix, status, created_at, revoked_at
		FROM requesters WHERE requester_id = ?`, requesterID)
}

func (s *Store) GetRequesterByCredentialHash(hash string) (store.RequesterRecord, bool) {
	return getRequester(s.db, `SELECT requester_id, name, contact, credential_hash, credential_prefix, status, created_at, revoked_at
		FROM requesters WHERE credential_hash = ?`, hash)
}

func (s *Store) UpdateRequester(rec store.RequesterRecord) error {
	return s.WithTx(func(tx store.Tx) error { return tx.UpdateRequester(rec) })
}

func (s *Store) CountRequesters() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM requesters`).Scan(&n)
	return n, err
}

func (s *Store) AppendEntry(entry store.LedgerEntry) error {
	return s.WithTx(func(tx store.Tx) error { return tx.AppendEntry(entry) })
}

func (s *Store) LastEntry() (store.LedgerEntry, bool) {
	return lastEntry(s.db)
}

func (s *Store) ListEntriesFrom(seq int64, limit int) ([]store.LedgerEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT sequence, requester_id, token_fingerprint, intent, outcome, reason_code, timestamp, prev_hash, entry_hash
		FROM ledger_entries WHERE sequence >= ? ORDER BY sequence LIMIT ?`, seq, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []store.LedgerEntry
	for rows.Next() {
		var entry store.LedgerEntry
		if err := rows.Scan(&entry.Sequence, &entry.RequesterID, &entry.TokenFingerprint, &entry.Intent, &entry.Outcome, &entry.ReasonCode, &entry.Timestamp, &entry.PrevHash, &entry.EntryHash); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) InsertIdentity(rec store.IdentityRecord) error {
	if _, ok := getIdentity(t.tx, rec.Token); ok {
		return store.ErrDuplicate
	}
	rights, err := json.Marshal(rec.Rights)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`INSERT INTO identities(token, rights_json, version, created_at, updated_at) VALUES(?, ?, ?, ?, ?)`,
		rec.Token, string(rights), rec.Version, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (t *Tx) GetIdentity(token string) (store.IdentityRecord, bool) {
	return getIdentity(t.tx, token)
}

func (t *Tx) UpdateIdentity(rec store.IdentityRecord) error {
	rights, err := json.Marshal(rec.Rights)
	if err != nil {
		return err
	}
	res, err := t.tx.Exec(`UPDATE identities SET rights_json = ?, version = ?, updated_at = ? WHERE token = ?`,
		string(rights), rec.Version, rec.UpdatedAt, rec.Token)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrMissing
	}
	return nil
}

func (t *Tx) InsertRequester(rec store.RequesterRecord) error {
	if _, ok := t.GetRequester(rec.RequesterID); ok {
		return store.ErrDuplicate
	}
	if _, ok := t.GetRequesterByCredentialHash(rec.CredentialHash); ok {
		return store.ErrDuplicate
	}
	_, err := t.tx.Exec(`INSERT INTO requesters(requester_id, name, contact, credential_hash, credential_prefix, status, created_at, revoked_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequesterID, rec.Name, rec.Contact, rec.CredentialHash, rec.CredentialPrefix, rec.Status, rec.CreatedAt, rec.RevokedAt)
	return err
}

func (t *Tx) GetRequester(requesterID string) (store.RequesterRecord, bool) {
	return getRequester(t.tx, `SELECT requester_id, name, contact, credential_hash, credential_prefix, status, created_at, revoked_at
		FROM requesters WHERE requester_id = ?`, requesterID)
}

func (t *Tx) GetRequesterByCredentialHash(hash string) (store.RequesterRecord, bool) {
	return getRequester(t.tx, `SELECT requester_id, name, contact, credential_hash, credential_prefix, status, created_at, revoked_at
		FROM requesters WHERE credential_hash = ?`, hash)
}

func (t *Tx) UpdateRequester(rec store.RequesterRecord) error {
	res, err := t.tx.Exec(`UPDATE requesters SET name = ?, contact = ?, credential_hash = ?, credential_prefix = ?, status = ?, revoked_at = ? WHERE requester_id = ?`,
		rec.Name, rec.Contact, rec.CredentialHash, rec.CredentialPrefix, rec.Status, rec.RevokedAt, rec.RequesterID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrMissing
	}
	return nil
}

func (t *Tx) AppendEntry(entry store.LedgerEntry) error {
	_, err := t.tx.Exec(`INSERT INTO ledger_entries(sequence, requester_id, token_fingerprint, intent, outcome, reason_code, timestamp, prev_hash, entry_hash)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Sequence, entry.RequesterID, entry.TokenFingerprint, entry.Intent, entry.Outcome, entry.ReasonCode, entry.Timestamp, entry.PrevHash, entry.EntryHash)
	return err
}

func (t *Tx) LastEntry() (store.LedgerEntry, bool) {
	return lastEntry(t.tx)
}

func getIdentity(q querier, token string) (store.IdentityRecord, bool) {
	var (
		rec    store.IdentityRecord
		rights string
	)
	row := q.QueryRow(`SELECT token, rights_json, version, created_at, updated_at FROM identities WHERE token = ?`, token)
	if err := row.Scan(&rec.Token, &rights, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return store.IdentityRecord{}, false
	}
	if err := json.Unmarshal([]byte(rights), &rec.Rights); err != nil {
		return store.IdentityRecord{}, false
	}
	return rec, true
}

func getRequester(q querier, query string, arg string) (store.RequesterRecord, bool) {
	var rec store.RequesterRecord
	row := q.QueryRow(query, arg)
	if err := row.Scan(&rec.RequesterID, &rec.Name, &rec.Contact, &rec.CredentialHash, &rec.CredentialPrefix, &rec.Status, &rec.CreatedAt, &rec.RevokedAt); err != nil {
		return store.RequesterRecord{}, false
	}
	return rec, true
}

func lastEntry(q querier) (store.LedgerEntry, bool) {
	var entry store.LedgerEntry
	row := q.QueryRow(`SELECT sequence, requester_id, token_fingerprint, intent, outcome, reason_code, timestamp, prev_hash, entry_hash
		FROM ledger_entries ORDER BY sequence DESC LIMIT 1`)
	if err := row.Scan(&entry.Sequence, &entry.RequesterID, &entry.TokenFingerprint, &entry.Intent, &entry.Outcome, &entry.ReasonCode, &entry.Timestamp, &entry.PrevHash, &entry.EntryHash); err != nil {
		return store.LedgerEntry{}, false
	}
	return entry, true
}
