// Package common defines shared constants and sentinel errors used across
// the CourierDesk client layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Transport-level errors (network, timeout, 5xx).
	ErrUnavailable = errors.New("server unavailable")

	// Auth errors (missing, invalid or expired credential).
	ErrUnauthorized = errors.New("unauthorized")

	// Session lifecycle errors.
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionInactive = errors.New("session inactive too long")

	// Generic/internal flow control.
	ErrInternal = errors.New("internal error")
)
