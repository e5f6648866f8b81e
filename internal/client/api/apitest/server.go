// Package apitest provides an in-process double of the CourierDesk backend
// for pipeline and auth manager tests. It implements the auth endpoints and
// the shipments listing with configurable failure knobs and records the
// credential presented on every call.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mbelkin/courierdesk/internal/client/session"
)

type account struct {
	password string
	user     session.User
}

// Server is the fake backend. Construct with New, stop with Close.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	accounts    map[string]account
	credential  string // the one token the server currently accepts
	user        session.User
	taken       map[string]bool
	shipments   []map[string]any
	delay       time.Duration
	loginStatus int
	loginMsg    string
	logoutFail  bool
	calls       map[string]int
	seen        map[string][]string // route -> credentials presented
}

func New() *Server {
	s := &Server{
		accounts: map[string]account{},
		taken:    map[string]bool{},
		calls:    map[string]int{},
		seen:     map[string][]string{},
	}

	r := chi.NewRouter()
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/register", s.handleRegister)
	r.Get("/api/auth/me", s.handleMe)
	r.Post("/api/auth/logout", s.handleLogout)
	r.Get("/api/users/check-username", s.handleCheckUsername)
	r.Get("/api/shipments", s.handleShipments)

	s.Server = httptest.NewServer(r)
	return s
}

// SetSession makes credential the one token the server accepts and user the
// profile returned by the identity check.
func (s *Server) SetSession(credential string, user session.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = credential
	s.user = user
}

// SetUser updates the server-side profile without changing the credential.
func (s *Server) SetUser(user session.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// AddAccount registers a login-able account. Logging in issues credential
// (as previously set via SetSession, or "issued-"+username otherwise).
func (s *Server) AddAccount(username, password string, user session.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[username] = account{password: password, user: user}
	s.taken[username] = true
}

// SetTaken marks a username as already registered.
func (s *Server) SetTaken(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taken[name] = true
}

// SetShipments sets the payload of the shipments listing.
func (s *Server) SetShipments(shipments []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipments = shipments
}

// FailLogin forces the login endpoint to answer with the given status and
// message payload.
func (s *Server) FailLogin(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginStatus = status
	s.loginMsg = message
}

// FailLogout makes the logout endpoint answer 500.
func (s *Server) FailLogout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutFail = true
}

// SetDelay makes every handler sleep before answering, to trigger client
// timeouts.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns how many requests hit the given route, e.g.
// "GET /api/shipments".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// CredentialsSeen returns the bearer credentials presented on each call to
// the route, in order. Calls without a credential record "".
func (s *Server) CredentialsSeen(route string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen[route]...)
}

func (s *Server) observe(r *http.Request) (valid bool, cred string, delay time.Duration) {
	cred = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if cred == r.Header.Get("Authorization") {
		cred = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	route := r.Method + " " + r.URL.Path
	s.calls[route]++
	s.seen[route] = append(s.seen[route], cred)
	return s.credential != "" && cred == s.credential, cred, s.delay
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	_, _, delay := s.observe(r)
	time.Sleep(delay)

	s.mu.Lock()
	forcedStatus, forcedMsg := s.loginStatus, s.loginMsg
	s.mu.Unlock()
	if forcedStatus != 0 {
		writeMessage(w, forcedStatus, forcedMsg)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "malformed request")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Username]
	if !ok || acc.password != req.Password {
		s.mu.Unlock()
		writeMessage(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if s.credential == "" {
		s.credential = "issued-" + req.Username
	}
	s.user = acc.user
	credential, user := s.credential, s.user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"token": credential, "user": user})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	_, _, delay := s.observe(r)
	time.Sleep(delay)

	var req struct {
		Username        string `json:"username"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"password_confirm"`
		DisplayName     string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "malformed request")
		return
	}

	s.mu.Lock()
	if s.taken[req.Username] {
		s.mu.Unlock()
		writeMessage(w, http.StatusConflict, "username already taken")
		return
	}
	if req.Password != req.PasswordConfirm {
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "passwords do not match")
		return
	}
	s.accounts[req.Username] = account{
		password: req.Password,
		user:     session.User{ID: int64(len(s.accounts) + 1), Username: req.Username, DisplayName: req.DisplayName, Role: "customer"},
	}
	s.taken[req.Username] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"message": "registered"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	valid, _, delay := s.observe(r)
	time.Sleep(delay)

	if !valid {
		// Absent or invalid credential is not a transport error here.
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "user": nil})
		return
	}
	s.mu.Lock()
	user := s.user
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	_, _, delay := s.observe(r)
	time.Sleep(delay)

	s.mu.Lock()
	fail := s.logoutFail
	s.credential = ""
	s.mu.Unlock()

	if fail {
		writeMessage(w, http.StatusInternalServerError, "logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "bye"})
}

func (s *Server) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	_, _, delay := s.observe(r)
	time.Sleep(delay)

	name := r.URL.Query().Get("username")
	if name == "" {
		writeMessage(w, http.StatusBadRequest, "username is required")
		return
	}
	s.mu.Lock()
	available := !s.taken[name]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func (s *Server) handleShipments(w http.ResponseWriter, r *http.Request) {
	valid, _, delay := s.observe(r)
	time.Sleep(delay)

	if !valid {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.mu.Lock()
	shipments := s.shipments
	s.mu.Unlock()
	if shipments == nil {
		shipments = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, shipments)
}
