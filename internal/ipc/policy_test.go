package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ostreedev/rpmostreed-core/internal/ostreeerr"
	"github.com/ostreedev/rpmostreed-core/internal/txn"
)

func uid(v uint32) *uint32 { return &v }

type fakeSessionChecker map[uint32]bool

func (f fakeSessionChecker) HasSession(u uint32) bool { return f[u] }

func TestDefaultPolicy_UID0AlwaysAllowed(t *testing.T) {
	p := DefaultPolicy{}
	assert.NoError(t, p.Authorize("Upgrade", txn.Caller{UID: uid(0)}))
	assert.NoError(t, p.Authorize("RegisterClient", txn.Caller{UID: uid(0)}))
}

func TestDefaultPolicy_SelfAuthForRegisterWithSession(t *testing.T) {
	p := DefaultPolicy{Sessions: fakeSessionChecker{1000: true}}
	assert.NoError(t, p.Authorize("RegisterClient", txn.Caller{UID: uid(1000)}))
	assert.NoError(t, p.Authorize("UnregisterClient", txn.Caller{UID: uid(1000)}))
}

func TestDefaultPolicy_SelfAuthDeniedWithoutSession(t *testing.T) {
	p := DefaultPolicy{Sessions: fakeSessionChecker{}}
	err := p.Authorize("RegisterClient", txn.Caller{UID: uid(1000)})
	assert.True(t, ostreeerr.Is(err, ostreeerr.NotAuthorized))
}

func TestDefaultPolicy_SelfAuthDoesNotExtendToOtherMethods(t *testing.T) {
	p := DefaultPolicy{Sessions: fakeSessionChecker{1000: true}}
	err := p.Authorize("Upgrade", txn.Caller{UID: uid(1000)})
	assert.True(t, ostreeerr.Is(err, ostreeerr.NotAuthorized))
}

func TestDefaultPolicy_UnknownUIDDenied(t *testing.T) {
	p := DefaultPolicy{}
	err := p.Authorize("Upgrade", txn.Caller{})
	assert.True(t, ostreeerr.Is(err, ostreeerr.NotAuthorized))
}

func TestDefaultPolicy_NilSessionsDefaultsToNoop(t *testing.T) {
	p := DefaultPolicy{}
	err := p.Authorize("RegisterClient", txn.Caller{UID: uid(1000)})
	assert.True(t, ostreeerr.Is(err, ostreeerr.NotAuthorized))
}
