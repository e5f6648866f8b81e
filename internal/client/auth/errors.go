package auth

import (
	"errors"

	"github.com/mbelkin/courierdesk/internal/client/api"
	"github.com/mbelkin/courierdesk/internal/common"
)

// DisplayMessage converts a classified error into a message fit for the UI.
// Server-provided messages pass through verbatim; raw transport errors
// never cross this boundary.
func DisplayMessage(err error) string {
	var se *api.StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Message
	case errors.Is(err, common.ErrUnauthorized):
		return "invalid username or password"
	case errors.Is(err, common.ErrUnavailable):
		return "server unavailable, please try again"
	default:
		return "unexpected error, please try again"
	}
}
