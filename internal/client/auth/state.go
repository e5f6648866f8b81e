package auth

// State is the client-observable authentication state.
//
// Transitions: Unknown → Checking → {Authenticated, Anonymous};
// Authenticated → Anonymous on logout or confirmed rejection;
// Anonymous → Checking on a login attempt. Checking always resolves to one
// of the two terminal-for-now states within the pipeline's timeout budget.
type State int

const (
	// StateUnknown is the initial state before the first reconciliation.
	StateUnknown State = iota

	// StateChecking means a reconciliation or login is in flight. The user
	// returned alongside it, if any, is the optimistically adopted cached
	// identity, rendered before server confirmation.
	StateChecking

	// StateAuthenticated means the current identity is backed by a session
	// record (server-confirmed, or cached across a transient failure).
	StateAuthenticated

	// StateAnonymous means there is no session.
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}
