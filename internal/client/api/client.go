package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mbelkin/courierdesk/internal/common"
	"github.com/mbelkin/courierdesk/internal/logging"
)

const defaultTimeout = 10 * time.Second

// CredentialSource is the read-only view of the token accessor the pipeline
// consults before attaching a credential. The pipeline never mutates
// session state itself; mutations happen through the sign-out hook.
type CredentialSource interface {
	Credential() (string, bool)
	HasUsableCredential(now time.Time) bool
}

// Config carries the pipeline wiring.
type Config struct {
	// BaseURL is the backend base address, e.g. "https://api.courierdesk.io".
	BaseURL string

	// Timeout bounds every call. Exceeding it is a transient failure,
	// never an authentication failure. Zero means the default.
	Timeout time.Duration

	// Recovery selects the bounded retry behavior after an authentication
	// failure. Nil means NoFallback.
	Recovery RecoveryStrategy

	// OnAuthFailure runs exactly once per failed call before any retry, when
	// an authenticated endpoint rejects the credential. The auth manager
	// uses it to clear the stored credential so the retry (if any) runs with
	// a different credential state.
	OnAuthFailure func(ctx context.Context)

	Logger logging.Logger

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client dispatches JSON calls to the backend.
type Client struct {
	baseURL       string
	http          *http.Client
	creds         CredentialSource
	recovery      RecoveryStrategy
	onAuthFailure func(ctx context.Context)
	timeout       time.Duration
	log           logging.Logger
	now           func() time.Time
}

func New(cfg Config, creds CredentialSource) *Client {
	c := &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		http:          cfg.HTTPClient,
		creds:         creds,
		recovery:      cfg.Recovery,
		onAuthFailure: cfg.OnAuthFailure,
		timeout:       cfg.Timeout,
		log:           cfg.Logger,
		now:           time.Now,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.recovery == nil {
		c.recovery = NoFallback{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.log == nil {
		c.log = logging.NewSlogLogger(slog.Default())
	}
	return c
}

// callOpts tune a single dispatch.
type callOpts struct {
	// anonymous skips credential attachment and disables recovery. Set for
	// the login/registration endpoints, which must succeed without a prior
	// session and must never be retried automatically.
	anonymous bool

	// noRecover marks the single recovery retry so it can never recurse.
	noRecover bool

	// credentialOverride replaces the token accessor's credential. Used by
	// the recovery retry.
	credentialOverride string
}

// do runs the full attach/dispatch/classify/recover sequence for one call.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, opts callOpts) error {
	err := c.dispatch(ctx, method, path, query, body, out, opts)
	if err == nil {
		return nil
	}
	if opts.anonymous || opts.noRecover || !errors.Is(err, common.ErrUnauthorized) {
		return err
	}

	// Bounded recovery: clear the stored credential once, then at most one
	// retry with the strategy's fallback. A second failure propagates.
	if c.onAuthFailure != nil {
		c.onAuthFailure(ctx)
	}
	fallback, ok := c.recovery.FallbackCredential(ctx)
	if !ok {
		return err
	}

	c.log.Warn(ctx, "credential rejected, retrying with fallback", "method", method, "path", path)
	opts.credentialOverride = fallback
	opts.noRecover = true
	return c.dispatch(ctx, method, path, query, body, out, opts)
}

// dispatch performs a single HTTP round trip and classifies the outcome.
func (c *Client) dispatch(ctx context.Context, method, path string, query url.Values, body, out any, opts callOpts) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(common.RequestIDHeaderName, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.attachCredential(req, opts)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connectivity failures are transient, never
		// authentication errors.
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	var payload errorPayload
	_ = json.Unmarshal(data, &payload)
	return classify(resp.StatusCode, payload.Message)
}

// attachCredential sets the authorization header for authenticated
// endpoints. Without a usable credential the call proceeds unauthenticated;
// the server's rejection then drives recovery.
func (c *Client) attachCredential(req *http.Request, opts callOpts) {
	if opts.anonymous {
		return
	}
	credential := opts.credentialOverride
	if credential == "" {
		if !c.creds.HasUsableCredential(c.now()) {
			return
		}
		credential, _ = c.creds.Credential()
	}
	if credential != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.AuthorizationScheme+" "+credential)
	}
}
