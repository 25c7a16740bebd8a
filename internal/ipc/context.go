package ipc

import (
	"context"

	"google.golang.org/grpc/peer"

	"github.com/ostreedev/rpmostreed-core/internal/txn"
)

// peerAddress extracts the grpc transport peer address, standing in for
// the bus address a real D-Bus-style transport would hand the daemon.
func peerAddress(ctx context.Context) (string, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "", false
	}
	return p.Addr.String(), true
}

// callerFromContext builds the Invocation.Caller recorded against a new
// transaction (§4.5), enriching the bare peer address with whatever the
// ClientRegistry already knows about it from a prior RegisterClient call.
func (s *Server) callerFromContext(ctx context.Context, osname string) txn.Caller {
	address, _ := peerAddress(ctx)
	caller := txn.Caller{BusAddress: address}
	if c, ok := s.clients.Lookup(address); ok {
		caller.ID = c.ID
		caller.UID = c.UID
		caller.PID = c.PID
		caller.Unit = c.Unit
		return caller
	}
	// No RegisterClient record yet (first call, or RegisterClient itself):
	// resolve uid/pid/unit directly so the policy check below still has
	// something to authorize against.
	caller.UID, caller.PID, caller.Unit = s.clients.Resolve(address)
	return caller
}
