package ipc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// readOnlyMethods names the methods a read-only listener (anything short
// of the method-invoking write path) is allowed to reach. Grounded on
// pkg/api/interceptor.go's isReadOnlyMethod, adapted from warren's
// List/Get/Inspect/Watch/Describe/Show naming to this service's own three
// read methods.
var readOnlyMethods = map[string]bool{
	"Status":      true,
	"Deployments": true,
	"Diff":        true,
}

func isReadOnlyMethod(fullMethod string) bool {
	idx := strings.LastIndex(fullMethod, "/")
	name := fullMethod
	if idx >= 0 {
		name = fullMethod[idx+1:]
	}
	return readOnlyMethods[name]
}

// ReadOnlyInterceptor rejects RegisterClient/UnregisterClient/InvokeMethod
// on listeners that are only supposed to observe state, mirroring the
// teacher's mTLS-vs-Unix-socket split but applied to this daemon's own
// read/write method set.
func ReadOnlyInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !isReadOnlyMethod(info.FullMethod) {
			return nil, status.Errorf(codes.PermissionDenied, "write operations not allowed on this listener: %s", info.FullMethod)
		}
		return handler(ctx, req)
	}
}
