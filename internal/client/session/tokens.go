package session

import (
	"context"
	"sync"
	"time"
)

// Tokens is the token accessor: the single read source the request pipeline
// consults before attaching a credential, and the write path through which
// session-mutating operations reach the store.
//
// It keeps an in-memory snapshot of the slot plus a monotonically increasing
// write sequence. A reconciliation snapshots the sequence before its network
// call and writes back with PutIfSeq, so a slow reconciliation started
// before a login can never clobber the login's newer record.
type Tokens struct {
	store Store

	mu  sync.RWMutex
	rec *Record
	seq uint64
}

func NewTokens(store Store) *Tokens {
	return &Tokens{store: store}
}

// Prime loads the snapshot from the store. Call once at client start.
func (t *Tokens) Prime(ctx context.Context) error {
	rec, err := t.store.Load(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.rec = rec
	t.mu.Unlock()
	return nil
}

// Current returns a copy of the snapshot record, or nil when absent.
func (t *Tokens) Current() *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.rec == nil {
		return nil
	}
	rec := *t.rec
	return &rec
}

// Credential returns the stored bearer credential, if any.
func (t *Tokens) Credential() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.rec == nil || t.rec.Credential == "" {
		return "", false
	}
	return t.rec.Credential, true
}

// HasUsableCredential reports whether a credential exists and its known
// expiry has not passed. It never contacts the server.
func (t *Tokens) HasUsableCredential(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.rec == nil || t.rec.Credential == "" {
		return false
	}
	if !t.rec.ExpiresAt.IsZero() && now.After(t.rec.ExpiresAt) {
		return false
	}
	return true
}

// Seq returns the current write sequence.
func (t *Tokens) Seq() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seq
}

// Put saves the record and bumps the write sequence. The store write happens
// under the lock so concurrent writers are strictly ordered.
func (t *Tokens) Put(ctx context.Context, rec *Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Save(ctx, rec); err != nil {
		return err
	}
	cp := *rec
	t.rec = &cp
	t.seq++
	return nil
}

// PutIfSeq saves the record only if the write sequence still equals seq.
// It returns false when a newer write (for example a login) has landed in
// the meantime; the stale record is discarded unsaved.
func (t *Tokens) PutIfSeq(ctx context.Context, rec *Record, seq uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seq != seq {
		return false, nil
	}
	if err := t.store.Save(ctx, rec); err != nil {
		return false, err
	}
	cp := *rec
	t.rec = &cp
	t.seq++
	return true, nil
}

// Clear empties the slot and bumps the write sequence so in-flight
// reconciliations cannot resurrect the cleared record.
func (t *Tokens) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Clear(ctx); err != nil {
		return err
	}
	t.rec = nil
	t.seq++
	return nil
}
