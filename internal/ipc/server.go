// Package ipc's Server implements RootServer against the daemon's actual
// collaborators. The package manager that resolves/stages RPM content and
// the lower-level commit/checkout/bootloader machinery are named out of
// scope in §1 ("treated as external collaborators"); Server reaches them
// through the pluggable OperationSet interface, the same shape daemon.InitSystem
// uses for the host init system.
package ipc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ostreedev/rpmostreed-core/internal/deployment"
	"github.com/ostreedev/rpmostreed-core/internal/diffcache"
	"github.com/ostreedev/rpmostreed-core/internal/metrics"
	"github.com/ostreedev/rpmostreed-core/internal/ostreeerr"
	"github.com/ostreedev/rpmostreed-core/internal/refspec"
	"github.com/ostreedev/rpmostreed-core/internal/registry"
	"github.com/ostreedev/rpmostreed-core/internal/sysroot"
	"github.com/ostreedev/rpmostreed-core/internal/txn"
)

// Status reports the daemon's own human-readable status and configured
// update policy, standing in for whatever drives the root object's
// Status/AutomaticUpdatePolicy properties (§4.7, §6).
type Status interface {
	Status() string
	AutomaticUpdatePolicy() string
}

// OperationSet performs the actual per-OS mutation named by method, the
// external collaborator §1 excludes from this repository's scope. Each
// call runs inside a Transaction body and should use tx's Emit* methods
// to report progress.
type OperationSet interface {
	Invoke(ctx context.Context, tx *txn.Transaction, osname, method string, options map[string]any) error
}

// NoopOperationSet emits a single TaskBegin/TaskEnd pair and succeeds,
// standing in for the unavailable package-manager/commit backend in
// environments with nothing real to wire (tests, local development).
type NoopOperationSet struct{}

func (NoopOperationSet) Invoke(ctx context.Context, tx *txn.Transaction, osname, method string, options map[string]any) error {
	tx.EmitTaskBegin(method)
	defer tx.EmitTaskEnd(method)
	select {
	case <-ctx.Done():
		return ostreeerr.Wrap(ostreeerr.Cancelled, ctx.Err())
	case <-time.After(10 * time.Millisecond):
	}
	return nil
}

// Server implements RootServer over the daemon's collaborators.
type Server struct {
	status      Status
	coordinator *txn.Coordinator
	clients     *registry.Registry
	view        *sysroot.View
	diffs       *diffcache.Cache
	locker      txn.Locker
	ops         OperationSet
	policy      PolicyEngine
	endpoints   *endpointRegistry
}

// NewServer wires a Server. ops may be nil, in which case NoopOperationSet
// is used; policy may be nil, in which case DefaultPolicy (with no session
// manager wired) is used.
func NewServer(status Status, coordinator *txn.Coordinator, clients *registry.Registry, view *sysroot.View, diffs *diffcache.Cache, locker txn.Locker, ops OperationSet, policy PolicyEngine) *Server {
	if ops == nil {
		ops = NoopOperationSet{}
	}
	if policy == nil {
		policy = DefaultPolicy{}
	}
	return &Server{
		status:      status,
		coordinator: coordinator,
		clients:     clients,
		view:        view,
		diffs:       diffs,
		locker:      locker,
		ops:         ops,
		policy:      policy,
		endpoints:   newEndpointRegistry(),
	}
}

func (s *Server) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	method, sender, path := s.coordinator.ActiveTransaction()
	return &StatusResponse{
		Status:                  s.status.Status(),
		AutomaticUpdatePolicy:   s.status.AutomaticUpdatePolicy(),
		ActiveTransactionMethod: method,
		ActiveTransactionSender: sender,
		ActiveTransactionPath:   path,
	}, nil
}

// Lookup resolves a private endpoint address to its Transaction, for use
// as a TransactionLookup by PrivateEndpointHandler. Only the coordinator's
// current (possibly lingering) transaction can ever match, since a
// Transaction's endpoint address is only reachable while it is active.
func (s *Server) Lookup(address string) (*txn.Transaction, bool) {
	active := s.coordinator.Active()
	if active == nil || active.EndpointAddress() != address {
		return nil, false
	}
	return active, true
}

func (s *Server) Deployments(ctx context.Context, req *DeploymentsRequest) (*DeploymentsResponse, error) {
	model := s.view.Model()
	list := model.List()
	out := make([]DeploymentDTO, 0, len(list))
	for _, d := range list {
		out = append(out, toDTO(d))
	}
	return &DeploymentsResponse{Deployments: out, BootedID: model.BootedID()}, nil
}

func toDTO(d deployment.Deployment) DeploymentDTO {
	return DeploymentDTO{
		ID:        d.ID(),
		OSName:    d.OSName,
		Checksum:  d.Checksum,
		Serial:    d.Serial,
		Index:     d.Index,
		Refspec:   d.Origin.Refspec,
		Version:   d.Version,
		Timestamp: d.Timestamp.Unix(),
		Booted:    d.Booted,
		Pinned:    d.Pinned,
		Staged:    d.Staged,
	}
}

func (s *Server) RegisterClient(ctx context.Context, req *RegisterClientRequest) (*RegisterClientResponse, error) {
	address, ok := peerAddress(ctx)
	if !ok {
		return nil, status.Error(codes.FailedPrecondition, "no peer address in context")
	}
	caller := s.callerFromContext(ctx, "")
	if err := s.policy.Authorize("RegisterClient", caller); err != nil {
		return nil, toGRPCError(err)
	}
	s.clients.Register(address, req.ID)
	metrics.ConnectedClients.Set(float64(s.clients.Size()))
	return &RegisterClientResponse{}, nil
}

func (s *Server) UnregisterClient(ctx context.Context, req *UnregisterClientRequest) (*UnregisterClientResponse, error) {
	address, ok := peerAddress(ctx)
	if !ok {
		return nil, status.Error(codes.FailedPrecondition, "no peer address in context")
	}
	caller := s.callerFromContext(ctx, "")
	if err := s.policy.Authorize("UnregisterClient", caller); err != nil {
		return nil, toGRPCError(err)
	}
	s.clients.Unregister(address)
	s.endpoints.Notify(address)
	metrics.ConnectedClients.Set(float64(s.clients.Size()))
	return &UnregisterClientResponse{}, nil
}

func (s *Server) InvokeMethod(ctx context.Context, req *MethodRequest) (*MethodResponse, error) {
	if req.OSName == "" {
		return nil, status.Error(codes.InvalidArgument, "osname is required")
	}
	caller := s.callerFromContext(ctx, req.OSName)
	if err := s.policy.Authorize(req.Method, caller); err != nil {
		return nil, toGRPCError(err)
	}
	if err := ValidateOptions(req.Method, req.Options); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Method == "Rebase" {
		if err := s.checkRebaseRefspec(req.OSName, req.Options); err != nil {
			return nil, toGRPCError(err)
		}
	}

	invocation := txn.Invocation{Method: req.Method, Params: invocationParams(req.OSName, req.Options), Caller: caller}

	existing, err := s.coordinator.PrepForTxn(invocation)
	if err != nil {
		return nil, toGRPCError(err)
	}
	if existing != nil {
		metrics.CompatibleJoinsTotal.Inc()
		return &MethodResponse{EndpointAddress: existing.EndpointAddress()}, nil
	}

	title := titleForMethod(req.Method, req.OSName)
	callerVanished, forget := s.endpoints.watch(caller.BusAddress)
	defer forget()
	body := func(ctx context.Context, tx *txn.Transaction) error {
		return s.ops.Invoke(ctx, tx, req.OSName, req.Method, req.Options)
	}

	tx, err := txn.New(invocation, title, s.locker, body, callerVanished)
	if err != nil {
		return nil, toGRPCError(err)
	}
	s.coordinator.Install(tx)
	tx.Start()

	return &MethodResponse{EndpointAddress: tx.EndpointAddress()}, nil
}

func (s *Server) Diff(ctx context.Context, req *DiffRequest) (*DiffResponse, error) {
	diff, ok := s.diffs.Get(req.FromID, req.ToID)
	if !ok {
		metrics.DiffCacheMissesTotal.Inc()
		return &DiffResponse{Found: false}, nil
	}
	metrics.DiffCacheHitsTotal.Inc()

	return &DiffResponse{
		Found:      true,
		Upgraded:   toChangeDTOs(diff.Upgraded),
		Downgraded: toChangeDTOs(diff.Downgraded),
		Added:      diff.Added,
		Removed:    diff.Removed,
	}, nil
}

func toChangeDTOs(in []diffcache.PackageChange) []PackageChangeDTO {
	out := make([]PackageChangeDTO, 0, len(in))
	for _, c := range in {
		out = append(out, PackageChangeDTO{Name: c.Name, FromVersion: c.FromVersion, ToVersion: c.ToVersion})
	}
	return out
}

// checkRebaseRefspec resolves the requested partial refspec against the
// osname's default deployment's origin with the §4.1 parser before a
// transaction is even constructed.
func (s *Server) checkRebaseRefspec(osname string, options map[string]any) error {
	raw, _ := options["refspec"].(string)
	def, err := s.view.Model().DefaultForOS(osname)
	if err != nil {
		return err
	}
	base, err := parseBaseRefspec(def.Origin.Refspec)
	if err != nil {
		return err
	}
	_, err = refspec.ParsePartial(raw, base)
	return err
}

func parseBaseRefspec(s string) (refspec.Refspec, error) {
	for i, c := range s {
		if c == ':' {
			return refspec.Refspec{Remote: s[:i], Ref: s[i+1:]}, nil
		}
	}
	return refspec.Refspec{}, ostreeerr.New(ostreeerr.InvalidRefspec, "default origin %q has no remote", s)
}

// invocationParams folds osname into the comparison map Invocation.Equal
// uses, so two calls with identical options against different osnames are
// never mistaken for the same in-flight transaction (§4.6 compatibility
// merge is always scoped to one osname).
func invocationParams(osname string, options map[string]any) map[string]any {
	out := make(map[string]any, len(options)+1)
	for k, v := range options {
		out[k] = v
	}
	out["__osname"] = osname
	return out
}

// titleForMethod renders the human-readable transaction title quoted in
// Busy errors (§4.6 "transaction in progress: {title}").
func titleForMethod(method, osname string) string {
	return fmt.Sprintf("%s (%s)", method, osname)
}

func toGRPCError(err error) error {
	switch ostreeerr.KindOf(err) {
	case ostreeerr.Busy:
		return status.Error(codes.FailedPrecondition, err.Error())
	case ostreeerr.InvalidRefspec, ostreeerr.MissingRefspec:
		return status.Error(codes.InvalidArgument, err.Error())
	case ostreeerr.MissingDeployment, ostreeerr.NotFound:
		return status.Error(codes.NotFound, err.Error())
	case ostreeerr.NotAuthorized:
		return status.Error(codes.PermissionDenied, err.Error())
	case ostreeerr.Cancelled:
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
