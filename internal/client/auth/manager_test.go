package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbelkin/courierdesk/internal/client/api"
	"github.com/mbelkin/courierdesk/internal/client/session"
	"github.com/mbelkin/courierdesk/internal/common"
)

// ---- fakes ----

// memStore is an in-memory session.Store.
type memStore struct {
	rec *session.Record
}

func (m *memStore) Load(ctx context.Context) (*session.Record, error) {
	if m.rec == nil {
		return nil, nil
	}
	cp := *m.rec
	return &cp, nil
}

func (m *memStore) Save(ctx context.Context, rec *session.Record) error {
	cp := *rec
	m.rec = &cp
	return nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.rec = nil
	return nil
}

// fakeAPI implements the API interface with scriptable behavior and
// recorded arguments.
type fakeAPI struct {
	loginResp  *api.LoginResponse
	loginErr   error
	loginCalls int
	lastLogin  [2]string

	meFn    func() (*api.IdentityResponse, error)
	meCalls int

	registerErr   error
	registerCalls int
	lastRegister  api.RegisterRequest

	logoutErr   error
	logoutCalls int

	availableRet bool
	availableErr error
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (*api.LoginResponse, error) {
	f.loginCalls++
	f.lastLogin = [2]string{username, password}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResp, nil
}

func (f *fakeAPI) Register(ctx context.Context, req api.RegisterRequest) error {
	f.registerCalls++
	f.lastRegister = req
	return f.registerErr
}

func (f *fakeAPI) Me(ctx context.Context) (*api.IdentityResponse, error) {
	f.meCalls++
	if f.meFn != nil {
		return f.meFn()
	}
	return &api.IdentityResponse{Authenticated: false}, nil
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAPI) UsernameAvailable(ctx context.Context, name string) (bool, error) {
	return f.availableRet, f.availableErr
}

func confirming(user session.User) func() (*api.IdentityResponse, error) {
	return func() (*api.IdentityResponse, error) {
		cp := user
		return &api.IdentityResponse{Authenticated: true, User: &cp}, nil
	}
}

// ---- helpers ----

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dispatcher() session.User {
	return session.User{ID: 7, Username: "alice", DisplayName: "Alice K", Role: "dispatcher"}
}

func setup(t *testing.T, f *fakeAPI, rec *session.Record) (*Manager, *memStore, *session.Tokens) {
	t.Helper()
	st := &memStore{rec: rec}
	tokens := session.NewTokens(st)
	require.NoError(t, tokens.Prime(context.Background()))

	m := NewManager(f, tokens, 24*time.Hour, 5*24*time.Hour, nil)
	m.now = func() time.Time { return testNow }
	return m, st, tokens
}

func liveRecord() *session.Record {
	return session.NewRecord("tok-1", dispatcher(), testNow.Add(-time.Hour), 24*time.Hour)
}

// ---- reconciliation ----

func TestReconcile_NoRecordUnconfirmed_ConcludesAnonymous(t *testing.T) {
	f := &fakeAPI{} // Me answers authenticated:false
	m, st, _ := setup(t, f, nil)

	require.NoError(t, m.Reconcile(context.Background()))

	state, user := m.State()
	require.Equal(t, StateAnonymous, state)
	require.Nil(t, user)
	require.Nil(t, st.rec, "store must remain empty")
	require.Equal(t, 1, f.meCalls)
}

func TestReconcile_ConfirmedIdentity_RefreshesStore(t *testing.T) {
	admin := dispatcher()
	admin.Role = "admin"
	f := &fakeAPI{meFn: confirming(admin)}

	rec := liveRecord()
	staleExpiry := rec.ExpiresAt
	m, st, _ := setup(t, f, rec)

	require.NoError(t, m.Reconcile(context.Background()))

	state, user := m.State()
	require.Equal(t, StateAuthenticated, state)
	require.Equal(t, "admin", user.Role, "server user is authoritative")

	require.NotNil(t, st.rec)
	require.Equal(t, "admin", st.rec.User.Role)
	require.True(t, st.rec.ExpiresAt.After(staleExpiry), "expiry must be refreshed")
	require.Equal(t, testNow, st.rec.LastActivityAt)
}

func TestReconcile_TransientFailure_KeepsCachedSession(t *testing.T) {
	f := &fakeAPI{meFn: func() (*api.IdentityResponse, error) {
		return nil, fmt.Errorf("%w: connection refused", common.ErrUnavailable)
	}}

	rec := liveRecord()
	expiry := rec.ExpiresAt
	m, st, _ := setup(t, f, rec)

	require.NoError(t, m.Reconcile(context.Background()))

	state, user := m.State()
	require.Equal(t, StateAuthenticated, state)
	require.Equal(t, "alice", user.Username, "cached identity survives network failures")
	require.True(t, st.rec.ExpiresAt.Equal(expiry), "store must be untouched")
}

func TestReconcile_ExpiredRecord_ConcludesAnonymous(t *testing.T) {
	f := &fakeAPI{meFn: confirming(dispatcher())}

	rec := session.NewRecord("tok-1", dispatcher(), testNow.Add(-48*time.Hour), 24*time.Hour)
	rec.LastActivityAt = testNow // recent activity does not save it
	m, st, _ := setup(t, f, rec)

	require.NoError(t, m.Reconcile(context.Background()))

	state, _ := m.State()
	require.Equal(t, StateAnonymous, state)
	require.Nil(t, st.rec)
	require.Zero(t, f.meCalls, "an expired record is destroyed without a round trip")
}

func TestReconcile_InactiveRecord_ConcludesAnonymous(t *testing.T) {
	f := &fakeAPI{meFn: confirming(dispatcher())}

	rec := session.NewRecord("tok-1", dispatcher(), testNow.Add(-10*24*time.Hour), 30*24*time.Hour)
	rec.LastActivityAt = testNow.Add(-6 * 24 * time.Hour) // past the 5 day ceiling
	require.True(t, rec.ExpiresAt.After(testNow), "precondition: not expired")
	m, st, _ := setup(t, f, rec)

	require.NoError(t, m.Reconcile(context.Background()))

	state, _ := m.State()
	require.Equal(t, StateAnonymous, state)
	require.Nil(t, st.rec)
}

func TestReconcile_ConfirmedRejection_DowngradesOnNextPass(t *testing.T) {
	f := &fakeAPI{} // Me answers authenticated:false
	m, st, _ := setup(t, f, liveRecord())

	// First pass: optimism is kept for the current view.
	require.NoError(t, m.Reconcile(context.Background()))
	state, user := m.State()
	require.Equal(t, StateAuthenticated, state)
	require.Equal(t, "alice", user.Username)
	require.NotNil(t, st.rec, "session is not destroyed yet")

	// Second pass: downgrade.
	require.NoError(t, m.Reconcile(context.Background()))
	state, user = m.State()
	require.Equal(t, StateAnonymous, state)
	require.Nil(t, user)
	require.Nil(t, st.rec)
	require.Equal(t, 1, f.meCalls, "the downgrade pass needs no round trip")
}

func TestReconcile_StaleWriteLosesToNewerLogin(t *testing.T) {
	// While the identity check is in flight, a login lands and writes a
	// newer record. The reconciliation's write-back must be discarded.
	var tokens *session.Tokens
	f := &fakeAPI{}
	f.meFn = func() (*api.IdentityResponse, error) {
		newer := session.NewRecord("tok-login", dispatcher(), testNow, 24*time.Hour)
		if err := tokens.Put(context.Background(), newer); err != nil {
			return nil, err
		}
		u := dispatcher()
		return &api.IdentityResponse{Authenticated: true, User: &u}, nil
	}

	m, st, tk := setup(t, f, liveRecord())
	tokens = tk

	require.NoError(t, m.Reconcile(context.Background()))

	require.Equal(t, "tok-login", st.rec.Credential,
		"the slower reconciliation must not clobber the newer login")
}

// ---- façade ----

func TestLogin_StoresSessionAndCompletesProfile(t *testing.T) {
	// The login response omits the default-sender fields; the follow-up
	// identity check supplies them.
	full := dispatcher()
	full.SenderName = "Alice K"
	full.SenderPhone = "+15550100"

	f := &fakeAPI{
		loginResp: &api.LoginResponse{Token: "tok-1", User: dispatcher()},
		meFn:      confirming(full),
	}
	m, st, _ := setup(t, f, nil)

	require.NoError(t, m.Login(context.Background(), "alice", "s3cret"))

	state, user := m.State()
	require.Equal(t, StateAuthenticated, state)
	require.Equal(t, "Alice K", user.SenderName, "profile completed from the identity check")

	require.NotNil(t, st.rec)
	require.Equal(t, "tok-1", st.rec.Credential)
	require.Equal(t, full, st.rec.User)
	require.Equal(t, [2]string{"alice", "s3cret"}, f.lastLogin)
}

func TestLogin_Failure_ConcludesAnonymous(t *testing.T) {
	f := &fakeAPI{loginErr: common.ErrUnauthorized}
	m, st, _ := setup(t, f, nil)

	err := m.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, common.ErrUnauthorized)

	state, _ := m.State()
	require.Equal(t, StateAnonymous, state)
	require.Nil(t, st.rec)
	require.Equal(t, 1, f.loginCalls, "no internal retry")
	require.Zero(t, f.meCalls)
}

func TestRegister_ChainsIntoLogin(t *testing.T) {
	f := &fakeAPI{
		loginResp: &api.LoginResponse{Token: "tok-1", User: dispatcher()},
		meFn:      confirming(dispatcher()),
	}
	m, st, _ := setup(t, f, nil)

	req := api.RegisterRequest{
		Username:        "alice",
		Password:        "s3cret",
		PasswordConfirm: "s3cret",
		DisplayName:     "Alice K",
	}
	require.NoError(t, m.Register(context.Background(), req))

	require.Equal(t, 1, f.registerCalls)
	require.Equal(t, [2]string{"alice", "s3cret"}, f.lastLogin, "auto-login after registration")
	require.NotNil(t, st.rec)
}

func TestRegister_FailureDoesNotLogin(t *testing.T) {
	f := &fakeAPI{registerErr: &api.StatusError{Status: 409, Message: "username already taken"}}
	m, _, _ := setup(t, f, nil)

	err := m.Register(context.Background(), api.RegisterRequest{Username: "alice"})
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "username already taken", se.Message)
	require.Zero(t, f.loginCalls)
}

func TestLoginThenLogout_EndsAnonymousWithEmptySlot(t *testing.T) {
	f := &fakeAPI{
		loginResp: &api.LoginResponse{Token: "tok-1", User: dispatcher()},
		meFn:      confirming(dispatcher()),
	}
	m, st, _ := setup(t, f, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, "alice", "s3cret"))
	require.NoError(t, m.Logout(ctx))

	state, user := m.State()
	require.Equal(t, StateAnonymous, state)
	require.Nil(t, user)
	require.Nil(t, st.rec)
	require.Equal(t, 1, f.logoutCalls)
}

func TestLogout_ServerFailure_StillClearsLocally(t *testing.T) {
	f := &fakeAPI{logoutErr: fmt.Errorf("%w: timeout", common.ErrUnavailable)}
	m, st, _ := setup(t, f, liveRecord())

	require.NoError(t, m.Logout(context.Background()))

	state, _ := m.State()
	require.Equal(t, StateAnonymous, state)
	require.Nil(t, st.rec, "local teardown must not depend on the network")
}

func TestRefreshCurrentUser_Idempotent(t *testing.T) {
	f := &fakeAPI{meFn: confirming(dispatcher())}
	m, st, _ := setup(t, f, liveRecord())

	m.RefreshCurrentUser(context.Background())
	first := st.rec.User
	m.RefreshCurrentUser(context.Background())

	require.Equal(t, first, st.rec.User, "unchanged profile yields the same cached user")
	require.Equal(t, 2, f.meCalls)
}

func TestRefreshCurrentUser_SwallowsFailures(t *testing.T) {
	f := &fakeAPI{meFn: func() (*api.IdentityResponse, error) {
		return nil, fmt.Errorf("%w: down", common.ErrUnavailable)
	}}
	rec := liveRecord()
	m, st, _ := setup(t, f, rec)

	m.RefreshCurrentUser(context.Background())

	require.NotNil(t, st.rec, "best-effort refresh never destroys the session")
	require.Equal(t, rec.Credential, st.rec.Credential)
}

func TestRefreshCurrentUser_NoSession_NoCall(t *testing.T) {
	f := &fakeAPI{}
	m, _, _ := setup(t, f, nil)

	m.RefreshCurrentUser(context.Background())
	require.Zero(t, f.meCalls)
}

func TestOnAuthFailure_ClearsSession(t *testing.T) {
	f := &fakeAPI{}
	m, st, _ := setup(t, f, liveRecord())

	m.OnAuthFailure(context.Background())

	state, user := m.State()
	require.Equal(t, StateAnonymous, state)
	require.Nil(t, user)
	require.Nil(t, st.rec)
}

func TestCheckUsernameAvailable_Passthrough(t *testing.T) {
	f := &fakeAPI{availableRet: true}
	m, _, _ := setup(t, f, nil)

	available, err := m.CheckUsernameAvailable(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, available)

	f.availableErr = errors.New("boom")
	_, err = m.CheckUsernameAvailable(context.Background(), "bob")
	require.Error(t, err, "failure is surfaced, not defaulted")
}

func TestState_InitialUnknown(t *testing.T) {
	m, _, _ := setup(t, &fakeAPI{}, nil)
	state, user := m.State()
	require.Equal(t, StateUnknown, state)
	require.Nil(t, user)
}

// ---- display messages ----

func TestDisplayMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"server message verbatim", &api.StatusError{Status: 409, Message: "username already taken"}, "username already taken"},
		{"unauthorized", common.ErrUnauthorized, "invalid username or password"},
		{"transient", fmt.Errorf("%w: dial tcp", common.ErrUnavailable), "server unavailable, please try again"},
		{"unknown", errors.New("boom"), "unexpected error, please try again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DisplayMessage(tt.err))
		})
	}
}
