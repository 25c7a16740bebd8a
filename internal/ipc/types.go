// Package ipc implements the §6 external interfaces: a grpc root-object
// service (Status, Deployments, RegisterClient, per-OS methods) reached
// without code-generated protoc stubs (explicitly out of scope per §1) via
// a hand-registered grpc.ServiceDesc and a JSON encoding.Codec, plus a
// gorilla/websocket private per-transaction endpoint that streams
// progress. Grounded on the teacher's pkg/api/server.go (grpc.NewServer +
// listener pattern) and pkg/api/interceptor.go (unary interceptor shape).
package ipc

// StatusRequest queries the daemon's top-level status (§6 service object
// graph).
type StatusRequest struct{}

// StatusResponse mirrors the root object's scalar properties.
type StatusResponse struct {
	Status                   string
	AutomaticUpdatePolicy    string
	ActiveTransactionMethod  string
	ActiveTransactionSender  string
	ActiveTransactionPath    string
}

// DeploymentsRequest asks for the full ordered deployment list.
type DeploymentsRequest struct{}

// DeploymentDTO is the wire shape of one Deployment (§3), trimmed to the
// fields §6 calls "deployment dictionaries."
type DeploymentDTO struct {
	ID        string
	OSName    string
	Checksum  string
	Serial    int
	Index     int
	Refspec   string
	Version   string
	Timestamp int64 // unix seconds
	Booted    bool
	Pinned    bool
	Staged    bool
}

// DeploymentsResponse mirrors the root object's Deployments/Booted
// properties (§6).
type DeploymentsResponse struct {
	Deployments []DeploymentDTO
	BootedID    string
}

// RegisterClientRequest carries the options dict's "id" key (§6).
type RegisterClientRequest struct {
	ID string
}

// RegisterClientResponse is empty; success is the absence of an error.
type RegisterClientResponse struct{}

// UnregisterClientRequest has no fields; the caller is identified by its
// transport-level peer address.
type UnregisterClientRequest struct{}

// UnregisterClientResponse is empty.
type UnregisterClientResponse struct{}

// MethodRequest invokes one of the per-OS mutating methods named in §6
// (Upgrade, Deploy, Rebase, Rollback, Cleanup, PkgChange,
// UpdateDeployment, SetInitramfsState, KernelArgs, FinalizeDeployment,
// RefreshMd).
type MethodRequest struct {
	OSName  string
	Method  string
	Options map[string]any
}

// MethodResponse is the private endpoint address of the constructed (or
// compatible-merged) transaction (§6 "Method reply shape").
type MethodResponse struct {
	EndpointAddress string
}

// DiffRequest asks for a cached package diff between two deployment ids
// (§6 "cached-diff queries").
type DiffRequest struct {
	FromID string
	ToID   string
}

// DiffResponse is empty when the diff has not yet been computed (Found
// is false); the caller is expected to trigger a PkgChange/RefreshMd
// transaction first.
type DiffResponse struct {
	Found      bool
	Upgraded   []PackageChangeDTO
	Downgraded []PackageChangeDTO
	Added      []string
	Removed    []string
}

// PackageChangeDTO mirrors diffcache.PackageChange.
type PackageChangeDTO struct {
	Name        string
	FromVersion string
	ToVersion   string
}
