package ipc

import (
	"github.com/ostreedev/rpmostreed-core/internal/ostreeerr"
	"github.com/ostreedev/rpmostreed-core/internal/txn"
)

// selfAuthMethods are the two methods a caller may authorize for itself by
// holding an active login session, independent of the real policy engine
// (§6 "Client registration").
var selfAuthMethods = map[string]bool{
	"RegisterClient":   true,
	"UnregisterClient": true,
}

// PolicyEngine decides whether caller may invoke method. It stands in for
// the real authorization engine (e.g. polkit) named out of scope in §1
// ("the policy engine used for authorization decisions"); only the decision
// *point* — where and how it's consulted — is this repository's concern.
type PolicyEngine interface {
	Authorize(method string, caller txn.Caller) error
}

// SessionChecker reports whether uid holds an active login session,
// standing in for the logind-style session lookup the host init system
// collaborator performs.
type SessionChecker interface {
	HasSession(uid uint32) bool
}

// NoopSessionChecker reports no active sessions, used where no session
// manager is wired (tests, non-Linux platforms).
type NoopSessionChecker struct{}

func (NoopSessionChecker) HasSession(uint32) bool { return false }

// DefaultPolicy implements §6's authorization contract exactly: uid 0 is
// always authorized for any method; RegisterClient and UnregisterClient are
// additionally self-authorized for a caller with a known uid holding an
// active session; every other caller/method pair is denied, since deciding
// it for real is the out-of-scope policy engine's job.
type DefaultPolicy struct {
	Sessions SessionChecker
}

func (p DefaultPolicy) Authorize(method string, caller txn.Caller) error {
	if caller.UID != nil && *caller.UID == 0 {
		return nil
	}
	if selfAuthMethods[method] && caller.UID != nil {
		sessions := p.Sessions
		if sessions == nil {
			sessions = NoopSessionChecker{}
		}
		if sessions.HasSession(*caller.UID) {
			return nil
		}
	}
	address := caller.BusAddress
	if address == "" {
		address = "unknown"
	}
	return ostreeerr.New(ostreeerr.NotAuthorized, "caller %s not authorized for %s", address, method)
}
