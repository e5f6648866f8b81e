package api

import "context"

// RecoveryStrategy decides how the pipeline behaves after an
// authentication-classified failure on a non-auth endpoint: whether the
// single permitted retry happens and with which credential. Selection is a
// configuration choice, not a compile-time one.
type RecoveryStrategy interface {
	// FallbackCredential returns the credential to present on the single
	// retry. ok=false means no retry: the failure is surfaced to the caller.
	FallbackCredential(ctx context.Context) (credential string, ok bool)
}

// NoFallback surfaces authentication failures immediately. This is the
// production behavior; the pipeline's sign-out hook still fires.
type NoFallback struct{}

func (NoFallback) FallbackCredential(context.Context) (string, bool) {
	return "", false
}

// SubstituteCredential retries once with a fixed substitute credential.
// Intended for development runtimes where a shared service credential can
// stand in after a stale personal one is cleared.
type SubstituteCredential struct {
	Credential string
}

func (s SubstituteCredential) FallbackCredential(context.Context) (string, bool) {
	return s.Credential, s.Credential != ""
}

// StrategyFor maps a configuration value to a strategy. Unknown modes and
// a missing substitute credential fall back to NoFallback.
func StrategyFor(mode string, credential string) RecoveryStrategy {
	if mode == "substitute" && credential != "" {
		return SubstituteCredential{Credential: credential}
	}
	return NoFallback{}
}
