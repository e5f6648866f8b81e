// Package auth contains the session reconciler and the authentication
// façade consumed by UI layers: login, register, logout, user refresh and
// the startup reconciliation that resolves cached local state against a
// server identity check.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mbelkin/courierdesk/internal/client/api"
	"github.com/mbelkin/courierdesk/internal/client/session"
	"github.com/mbelkin/courierdesk/internal/common"
	"github.com/mbelkin/courierdesk/internal/logging"
)

const (
	defaultSessionTTL      = 24 * time.Hour
	defaultInactivityLimit = 5 * 24 * time.Hour
)

// API is the request-pipeline surface the manager drives.
type API interface {
	Login(ctx context.Context, username, password string) (*api.LoginResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) error
	Me(ctx context.Context) (*api.IdentityResponse, error)
	Logout(ctx context.Context) error
	UsernameAvailable(ctx context.Context, name string) (bool, error)
}

// Manager owns the session lifecycle. It is the only component that mutates
// the credential store (through the token accessor); the request pipeline
// reads tokens and reaches back only via the OnAuthFailure hook.
//
// Session-mutating operations are serialized behind opMu; combined with the
// token accessor's write sequence this guarantees a slow reconciliation
// started before a login can never clobber the login's newer record.
type Manager struct {
	api             API
	tokens          *session.Tokens
	ttl             time.Duration
	inactivityLimit time.Duration
	log             logging.Logger

	opMu sync.Mutex // serializes session-mutating operations

	mu               sync.Mutex // guards the observable state below
	state            State
	user             *session.User
	downgradePending bool

	now func() time.Time
}

// NewManager wires the façade. Zero durations select the defaults
// (24h session TTL, 5 day inactivity ceiling).
func NewManager(apiClient API, tokens *session.Tokens, ttl, inactivityLimit time.Duration, log logging.Logger) *Manager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if inactivityLimit <= 0 {
		inactivityLimit = defaultInactivityLimit
	}
	if log == nil {
		log = logging.NewSlogLogger(slog.Default())
	}
	return &Manager{
		api:             apiClient,
		tokens:          tokens,
		ttl:             ttl,
		inactivityLimit: inactivityLimit,
		log:             log,
		state:           StateUnknown,
		now:             time.Now,
	}
}

// State returns the observable state and, when known, a copy of the current
// user. During StateChecking the user is the optimistically adopted cached
// identity.
func (m *Manager) State() (State, *session.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return m.state, nil
	}
	cp := *m.user
	return m.state, &cp
}

// Reconcile establishes the authoritative answer to "who is the current
// user, if anyone" by combining the local record with a server identity
// check. Run once at client start and again after identity-relevant events.
func (m *Manager) Reconcile(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	now := m.now()
	rec := m.tokens.Current()

	if rec == nil {
		m.setState(StateChecking, nil)
		return m.concludeWithoutRecord(ctx)
	}

	if m.takeDowngrade() {
		// A previous pass confirmed the server rejected this credential.
		m.clearTokens(ctx)
		m.setState(StateAnonymous, nil)
		return nil
	}

	if rec.Expired(now) || rec.Inactive(now, m.inactivityLimit) {
		m.clearTokens(ctx)
		m.setState(StateAnonymous, nil)
		return nil
	}

	// Optimistic adoption: render the cached identity without waiting for
	// the network.
	cached := rec.User
	m.setState(StateChecking, &cached)

	seq := m.tokens.Seq()
	res, err := m.api.Me(ctx)
	switch {
	case err == nil && res.Authenticated && res.User != nil:
		// Server is authoritative for profile fields: replace wholesale.
		rec.User = *res.User
		rec.Touch(now, m.ttl)
		ok, werr := m.tokens.PutIfSeq(ctx, rec, seq)
		if werr != nil {
			m.log.Error(ctx, "failed to persist refreshed session", "error", werr)
		} else if !ok {
			m.log.Debug(ctx, "session write superseded by a newer login")
		}
		m.clearDowngradeFlag()
		m.setState(StateAuthenticated, res.User)
		return nil

	case err == nil && !res.Authenticated, errors.Is(err, common.ErrUnauthorized):
		// Confirmed rejection: keep the optimistic identity for the current
		// view, do not extend the session; the next pass downgrades.
		m.log.Info(ctx, "stored credential rejected by server")
		m.markDowngrade()
		m.setState(StateAuthenticated, &cached)
		return nil

	default:
		// Transient failure: a network error never destroys the session.
		m.log.Warn(ctx, "identity check failed, keeping cached session", "error", err)
		m.setState(StateAuthenticated, &cached)
		return nil
	}
}

// concludeWithoutRecord handles the no-local-record path: one identity
// check with whatever ambient credential the pipeline can supply.
func (m *Manager) concludeWithoutRecord(ctx context.Context) error {
	res, err := m.api.Me(ctx)
	if err != nil {
		m.log.Warn(ctx, "identity check failed with no local session", "error", err)
		m.setState(StateAnonymous, nil)
		return nil
	}

	if res.Authenticated && res.User != nil {
		if cred, ok := m.tokens.Credential(); ok {
			rec := session.NewRecord(cred, *res.User, m.now(), m.ttl)
			if err := m.tokens.Put(ctx, rec); err != nil {
				m.log.Error(ctx, "failed to persist synthesized session", "error", err)
			}
		}
		m.setState(StateAuthenticated, res.User)
		return nil
	}

	m.clearTokens(ctx)
	m.setState(StateAnonymous, nil)
	return nil
}

// Login authenticates and persists the returned session, then immediately
// refreshes the user to pull profile fields the login response omits.
// The pipeline never retries login; errors come back classified.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setState(StateChecking, nil)

	res, err := m.api.Login(ctx, username, password)
	if err != nil {
		m.setState(StateAnonymous, nil)
		return err
	}

	rec := session.NewRecord(res.Token, res.User, m.now(), m.ttl)
	if err := m.tokens.Put(ctx, rec); err != nil {
		m.setState(StateAnonymous, nil)
		return err
	}
	m.clearDowngradeFlag()
	m.setState(StateAuthenticated, &res.User)

	m.refreshUser(ctx)
	return nil
}

// Register creates the account and chains into Login with the same
// credentials.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) error {
	if err := m.api.Register(ctx, req); err != nil {
		return err
	}
	return m.Login(ctx, req.Username, req.Password)
}

// Logout tears down local session state unconditionally. The server call is
// best-effort: its failure never leaves the client authenticated.
func (m *Manager) Logout(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.api.Logout(ctx); err != nil {
		m.log.Warn(ctx, "server logout failed, clearing local session anyway", "error", err)
	}

	err := m.clearTokens(ctx)
	m.clearDowngradeFlag()
	m.setState(StateAnonymous, nil)
	return err
}

// RefreshCurrentUser re-issues the identity check and updates the cached
// user on success. Best-effort: failures are logged, never surfaced.
func (m *Manager) RefreshCurrentUser(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.refreshUser(ctx)
}

// CheckUsernameAvailable is a stateless passthrough.
func (m *Manager) CheckUsernameAvailable(ctx context.Context, name string) (bool, error) {
	return m.api.UsernameAvailable(ctx, name)
}

// OnAuthFailure is wired into the request pipeline. It runs when an
// authenticated call is rejected, before any recovery retry: the stored
// credential is cleared once so the retry runs with a different credential
// state, and the observable state drops to Anonymous.
func (m *Manager) OnAuthFailure(ctx context.Context) {
	if err := m.tokens.Clear(ctx); err != nil {
		m.log.Error(ctx, "failed to clear rejected credential", "error", err)
	}
	m.mu.Lock()
	m.state = StateAnonymous
	m.user = nil
	m.downgradePending = false
	m.mu.Unlock()
}

// refreshUser runs the identity check and replaces the cached user. Caller
// holds opMu.
func (m *Manager) refreshUser(ctx context.Context) {
	rec := m.tokens.Current()
	if rec == nil {
		return
	}

	seq := m.tokens.Seq()
	res, err := m.api.Me(ctx)
	if err != nil {
		m.log.Warn(ctx, "user refresh failed", "error", err)
		return
	}
	if !res.Authenticated || res.User == nil {
		m.log.Info(ctx, "user refresh rejected by server")
		m.markDowngrade()
		return
	}

	now := m.now()
	rec.User = *res.User
	rec.Touch(now, m.ttl)
	ok, err := m.tokens.PutIfSeq(ctx, rec, seq)
	if err != nil {
		m.log.Error(ctx, "failed to persist refreshed user", "error", err)
		return
	}
	if ok {
		m.setState(StateAuthenticated, res.User)
	}
}

func (m *Manager) clearTokens(ctx context.Context) error {
	err := m.tokens.Clear(ctx)
	if err != nil {
		m.log.Error(ctx, "failed to clear session store", "error", err)
	}
	return err
}

func (m *Manager) setState(s State, user *session.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	if user == nil {
		m.user = nil
		return
	}
	cp := *user
	m.user = &cp
}

func (m *Manager) markDowngrade() {
	m.mu.Lock()
	m.downgradePending = true
	m.mu.Unlock()
}

func (m *Manager) clearDowngradeFlag() {
	m.mu.Lock()
	m.downgradePending = false
	m.mu.Unlock()
}

func (m *Manager) takeDowngrade() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.downgradePending
	m.downgradePending = false
	return pending
}
