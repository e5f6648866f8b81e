package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/mbelkin/courierdesk/internal/client/session"
)

// LoginRequest is the credentials payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued credential and the user snapshot. The
// login response may omit profile fields that only the identity check
// returns; the auth manager refreshes the user right after login.
type LoginResponse struct {
	Token string       `json:"token"`
	User  session.User `json:"user"`
}

// RegisterRequest is the registration form payload.
type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	DisplayName     string `json:"display_name"`
	Phone           string `json:"phone,omitempty"`
	Address         string `json:"address,omitempty"`
}

// IdentityResponse is the identity check result. A missing or invalid
// credential yields Authenticated=false with a 200, not an error status.
type IdentityResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user"`
}

// Shipment is the read model returned by the shipments listing.
type Shipment struct {
	ID               int64     `json:"id"`
	TrackingCode     string    `json:"tracking_code"`
	Status           string    `json:"status"`
	SenderName       string    `json:"sender_name"`
	RecipientName    string    `json:"recipient_name"`
	RecipientAddress string    `json:"recipient_address"`
	CreatedAt        time.Time `json:"created_at"`
}

// Login authenticates with the backend. The call carries no credential and
// is never retried automatically.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login",
		nil, LoginRequest{Username: username, Password: password}, &resp,
		callOpts{anonymous: true})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account. Like Login it runs without a credential and
// without automatic retry.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, http.MethodPost, "/api/auth/register", nil, req, nil,
		callOpts{anonymous: true})
}

// Me performs the server identity check with whatever credential the
// pipeline can supply.
func (c *Client) Me(ctx context.Context) (*IdentityResponse, error) {
	var resp IdentityResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &resp, callOpts{}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout asks the server to terminate the session. Best-effort: callers
// tear down local state regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil, callOpts{})
}

// UsernameAvailable reports whether name is free to register.
func (c *Client) UsernameAvailable(ctx context.Context, name string) (bool, error) {
	query := url.Values{"username": []string{name}}
	var resp struct {
		Available bool `json:"available"`
	}
	err := c.do(ctx, http.MethodGet, "/api/users/check-username", query, nil, &resp,
		callOpts{anonymous: true})
	if err != nil {
		return false, err
	}
	return resp.Available, nil
}

// Shipments lists the caller's shipments.
func (c *Client) Shipments(ctx context.Context) ([]Shipment, error) {
	var resp []Shipment
	if err := c.do(ctx, http.MethodGet, "/api/shipments", nil, nil, &resp, callOpts{}); err != nil {
		return nil, err
	}
	return resp, nil
}
