// Package session owns the locally persisted session state: the session
// record model, the credential store backed by the client database, and the
// token accessor the request pipeline consults before every call.
package session

import (
	"errors"
	"time"
)

// User is the denormalized profile snapshot cached alongside the credential
// so the UI can render without a round trip. The server copy is always
// authoritative: on every confirmed identity check the cached value is
// replaced wholesale, never merged field by field.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	SenderName  string `json:"default_sender_name,omitempty"`
	SenderPhone string `json:"default_sender_phone,omitempty"`
}

// Record is the unit persisted in the local slot: an opaque bearer
// credential plus the cached user and expiry/activity timestamps.
//
// A record is either absent or fully populated; Validate guards the store
// against partial writes. The cached Role is a capability hint only, the
// server remains the authority for permission checks.
type Record struct {
	Credential     string    `json:"credential"`
	User           User      `json:"user"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// ErrInvalidRecord indicates a record that violates the model invariants.
var ErrInvalidRecord = errors.New("invalid session record")

// NewRecord builds a fully populated record issued at now with the given TTL.
func NewRecord(credential string, user User, now time.Time, ttl time.Duration) *Record {
	return &Record{
		Credential:     credential,
		User:           user,
		IssuedAt:       now,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
	}
}

// Validate checks the record invariants: credential and user present,
// expiry strictly after issue.
func (r *Record) Validate() error {
	if r.Credential == "" || r.User.Username == "" {
		return ErrInvalidRecord
	}
	if r.ExpiresAt.IsZero() || !r.ExpiresAt.After(r.IssuedAt) {
		return ErrInvalidRecord
	}
	return nil
}

// Expired reports whether the absolute expiry has passed.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Inactive reports whether the record has been unused for longer than the
// given ceiling.
func (r *Record) Inactive(now time.Time, ceiling time.Duration) bool {
	return now.Sub(r.LastActivityAt) > ceiling
}

// Touch refreshes expiry and activity after a confirmed-live use.
func (r *Record) Touch(now time.Time, ttl time.Duration) {
	r.ExpiresAt = now.Add(ttl)
	r.LastActivityAt = now
}
