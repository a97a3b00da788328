package store

import "sync"

type InMemoryStore struct {
	mu sync.RWMutex

	identities map[string]IdentityRecord
	requesters map[string]RequesterRecord
	byCredHash map[string]string
	entries    []LedgerEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		identities: make(map[string]IdentityRecord),
		requesters: make(map[string]RequesterRecord),
		byCredHash: make(map[string]string),
	}
}

func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn((*memTx)(s))
}

type memTx InMemoryStore

func cloneIdentity(rec IdentityRecord) IdentityRecord {
	rights := make(map[string]bool, len(rec.Rights))
	for k, v := range rec.Rights {
		rights[k] = v
	}
	rec.Rights = rights
	return rec
}

func (s *InMemoryStore) InsertIdentity(rec IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).InsertIdentity(rec)
}

func (s *InMemoryStore) GetIdentity(token string) (IdentityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.identities[token]
	if !ok {
		return IdentityRecord{}, false
	}
	return cloneIdentity(rec), true
}

func (s *InMemoryStore) UpdateIdentity(rec IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).UpdateIdentity(rec)
}

func (s *InMemoryStore) CountIdentities() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.identities)), nil
}

func (s *InMemoryStore) InsertRequester(rec RequesterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).InsertRequester(rec)
}

func (s *InMemoryStore) GetRequester(requesterID string) (RequesterRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.requesters[requesterID]
	return rec, ok
}

func (s *InMemoryStore) GetRequesterByCredentialHash(hash string) (RequesterRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCredHash[hash]
	if !ok {
		return RequesterRecord{}, false
	}
	rec, ok := s.requesters[id]
	return rec, ok
}

func (s *InMemoryStore) UpdateRequester(rec RequesterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).UpdateRequester(rec)
}

func (s *InMemoryStore) CountRequesters() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.requesters)), nil
}

func (s *InMemoryStore) AppendEntry(entry LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).AppendEntry(entry)
}

func (s *InMemoryStore) LastEntry() (LedgerEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return LedgerEntry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

func (s *InMemoryStore) ListEntriesFrom(seq int64, limit int) ([]LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 0 {
		seq = 0
	}
	if seq >= int64(len(s.entries)) {
		return nil, nil
	}
	out := s.entries[seq:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	result := make([]LedgerEntry, len(out))
	copy(result, out)
	return result, nil
}

func (t *memTx) InsertIdentity(rec IdentityRecord) error {
	if _, ok := t.identities[rec.Token]; ok {
		return ErrDuplicate
	}
	t.identities[rec.Token] = cloneIdentity(rec)
	return nil
}

func (t *memTx) GetIdentity(token string) (IdentityRecord, bool) {
	rec, ok := t.identities[token]
	if !ok {
		return IdentityRecord{}, false
	}
	return cloneIdentity(rec), true
}

func (t *memTx) UpdateIdentity(rec IdentityRecord) error {
	if _, ok := t.identities[rec.Token]; !ok {
		return ErrMissing
	}
	t.identities[rec.Token] = cloneIdentity(rec)
	return nil
}

func (t *memTx) InsertRequester(rec RequesterRecord) error {
	if _, ok := t.requesters[rec.RequesterID]; ok {
		return ErrDuplicate
	}
	if _, ok := t.byCredHash[rec.CredentialHash]; ok {
		return ErrDuplicate
	}
	t.requesters[rec.RequesterID] = rec
	t.byCredHash[rec.CredentialHash] = rec.RequesterID
	return nil
}

func (t *memTx) GetRequester(requesterID string) (RequesterRecord, bool) {
	rec, ok := t.requesters[requesterID]
	return rec, ok
}

func (t *memTx) GetRequesterByCredentialHash(hash string) (RequesterRecord, bool) {
	id, ok := t.byCredHash[hash]
	if !ok {
		return RequesterRecord{}, false
	}
	rec, ok := t.requesters[id]
	return rec, ok
}

func (t *memTx) UpdateRequester(rec RequesterRecord) error {
	prev, ok := t.requesters[rec.RequesterID]
	if !ok {
		return ErrMissing
	}
	if prev.CredentialHash != rec.CredentialHash {
		delete(t.byCredHash, prev.CredentialHash)
		t.byCredHash[rec.CredentialHash] = rec.RequesterID
	}
	t.requesters[rec.RequesterID] = rec
	return nil
}

func (t *memTx) AppendEntry(entry LedgerEntry) error {
	if entry.Sequence != int64(len(t.entries)) {
		return ErrDuplicate
	}
	t.entries = append(t.entries, entry)
	return nil
}

func (t *memTx) LastEntry() (LedgerEntry, bool) {
	if len(t.entries) == 0 {
		return LedgerEntry{}, false
	}
	return t.entries[len(t.entries)-1], true
}
