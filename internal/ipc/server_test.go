package ipc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ostreedev/rpmostreed-core/internal/deployment"
	"github.com/ostreedev/rpmostreed-core/internal/diffcache"
	"github.com/ostreedev/rpmostreed-core/internal/registry"
	"github.com/ostreedev/rpmostreed-core/internal/sysroot"
	"github.com/ostreedev/rpmostreed-core/internal/txn"
)

type fakeStatus struct{}

func (fakeStatus) Status() string                 { return "ready" }
func (fakeStatus) AutomaticUpdatePolicy() string   { return "none" }

type fakeLoader struct{}

func (fakeLoader) Load() (deployment.List, sysroot.Stamp, error) {
	return deployment.List{
		{OSName: "fedora", Checksum: "aaa", Serial: 0, Index: 0, Booted: true, Origin: deployment.Origin{Refspec: "fedora:stable"}},
	}, sysroot.Stamp{RepoModTime: time.Unix(1, 0)}, nil
}

// fakeRootResolver reports every caller as uid 0, so tests exercise
// transaction/diff/status behavior without tripping the authorization
// check added on top of it; policy denial itself is covered separately by
// TestServer_InvokeMethod_DeniesUnauthorizedCaller.
type fakeRootResolver struct{}

func (fakeRootResolver) Resolve(string) (*uint32, *uint32, string) {
	uid := uint32(0)
	return &uid, nil, ""
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	view, err := sysroot.New("/fake", fakeLoader{}, sysroot.StaticBootedRef("fedora_aaa"))
	require.NoError(t, err)

	db, err := bolt.Open(filepath.Join(t.TempDir(), "diff.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	diffs, err := diffcache.New(db, 8)
	require.NoError(t, err)

	clients := registry.New(fakeRootResolver{})
	coordinator := txn.NewCoordinator()
	return NewServer(fakeStatus{}, coordinator, clients, view, diffs, view, nil, nil)
}

func TestServer_Status(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.Status(context.Background(), &StatusRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "none", resp.AutomaticUpdatePolicy)
	assert.Empty(t, resp.ActiveTransactionMethod)
}

func TestServer_Deployments(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.Deployments(context.Background(), &DeploymentsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Deployments, 1)
	assert.Equal(t, "fedora", resp.Deployments[0].OSName)
	assert.True(t, resp.Deployments[0].Booted)
}

func TestServer_RegisterClient_RequiresPeer(t *testing.T) {
	s := newTestServer(t)
	_, err := s.RegisterClient(context.Background(), &RegisterClientRequest{ID: "cli"})
	assert.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestServer_InvokeMethod_RequiresOSName(t *testing.T) {
	s := newTestServer(t)
	_, err := s.InvokeMethod(context.Background(), &MethodRequest{Method: "Upgrade"})
	assert.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_InvokeMethod_RebaseValidatesRefspecFirst(t *testing.T) {
	s := newTestServer(t)
	_, err := s.InvokeMethod(context.Background(), &MethodRequest{
		OSName:  "fedora",
		Method:  "Rebase",
		Options: map[string]any{"refspec": "fedora:stable"}, // equal to current origin, rejected
	})
	assert.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_InvokeMethod_RunsAndCompletes(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.InvokeMethod(context.Background(), &MethodRequest{
		OSName:  "fedora",
		Method:  "Upgrade",
		Options: map[string]any{},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.EndpointAddress)

	tx, ok := s.Lookup(resp.EndpointAddress)
	require.True(t, ok)
	success, _ := tx.Finish()
	assert.True(t, success)
}

func TestServer_InvokeMethod_SecondCallJoinsCompatible(t *testing.T) {
	s := newTestServer(t)
	first, err := s.InvokeMethod(context.Background(), &MethodRequest{OSName: "fedora", Method: "Upgrade", Options: map[string]any{}})
	require.NoError(t, err)

	second, err := s.InvokeMethod(context.Background(), &MethodRequest{OSName: "fedora", Method: "Upgrade", Options: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, first.EndpointAddress, second.EndpointAddress)
}

func TestServer_InvokeMethod_DeniesUnauthorizedCaller(t *testing.T) {
	view, err := sysroot.New("/fake", fakeLoader{}, sysroot.StaticBootedRef("fedora_aaa"))
	require.NoError(t, err)
	db, err := bolt.Open(filepath.Join(t.TempDir(), "diff.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	diffs, err := diffcache.New(db, 8)
	require.NoError(t, err)

	clients := registry.New(registry.NoopResolver{}) // uid left unresolved
	coordinator := txn.NewCoordinator()
	s := NewServer(fakeStatus{}, coordinator, clients, view, diffs, view, nil, nil)

	_, err = s.InvokeMethod(context.Background(), &MethodRequest{OSName: "fedora", Method: "Upgrade", Options: map[string]any{}})
	assert.Error(t, err)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestServer_Diff_Miss(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.Diff(context.Background(), &DiffRequest{FromID: "a", ToID: "b"})
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestServer_Diff_Hit(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.diffs.Put("a", "b", diffcache.PackageDiff{
		Upgraded: []diffcache.PackageChange{{Name: "kernel", FromVersion: "1", ToVersion: "2"}},
	}))

	resp, err := s.Diff(context.Background(), &DiffRequest{FromID: "a", ToID: "b"})
	require.NoError(t, err)
	assert.True(t, resp.Found)
	require.Len(t, resp.Upgraded, 1)
	assert.Equal(t, "kernel", resp.Upgraded[0].Name)
}
