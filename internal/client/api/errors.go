// Package api implements the request pipeline to the CourierDesk backend:
// every outbound call goes through a single attach/dispatch/classify/recover
// sequence with a fixed per-call timeout and a bounded recovery policy for
// authentication failures.
package api

import (
	"fmt"
	"net/http"

	"github.com/mbelkin/courierdesk/internal/common"
)

// StatusError is returned for application-level failures that carry a
// server-provided message (validation errors, conflicts, server faults).
// The message comes from the backend's error payload and is safe to show
// to the user verbatim.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// classify maps a non-2xx response to the error taxonomy: authentication
// failures become common.ErrUnauthorized, everything else keeps the server
// message. Transport failures never reach here; they are classified as
// common.ErrUnavailable at the dispatch site.
func classify(status int, message string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return common.ErrUnauthorized
	default:
		if message == "" {
			message = http.StatusText(status)
		}
		return &StatusError{Status: status, Message: message}
	}
}

// errorPayload is the backend's error body shape.
type errorPayload struct {
	Message string `json:"message"`
}
