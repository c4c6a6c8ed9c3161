package control

import (
	"context"
	"crypto/x509"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"streamcast/internal/capture"
	"streamcast/internal/manifest"
	"streamcast/internal/models"
	"streamcast/internal/store"
	"streamcast/internal/wowza"
)

const defaultRecordingSettle = 2 * time.Second

// Actor identifies who is asking for an operation. Power and lifecycle
// operations only need the owner; endpoint administration checks the role.
type Actor struct {
	ID   string
	Role string
}

// Orchestrator drives every lifecycle operation of the control plane. All
// state lives in the repository; the media server, manifest service and
// capture processes are reconciled against it, never trusted as the source
// of truth.
type Orchestrator struct {
	repo        store.Repository
	channel     wowza.Channel
	provisioner manifest.Provisioner
	supervisor  capture.Supervisor
	archive     store.ArchiveClient
	locks       *ownerLocks
	logger      *slog.Logger
	probe       *http.Client
	peerCerts   func(ctx context.Context, addr string) ([]*x509.Certificate, error)

	recordingRoot   string
	recordingSettle time.Duration
	now             func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithChannel installs the media server control channel.
func WithChannel(ch wowza.Channel) Option {
	return func(o *Orchestrator) { o.channel = ch }
}

// WithProvisioner installs the playlist manifest provisioner.
func WithProvisioner(p manifest.Provisioner) Option {
	return func(o *Orchestrator) { o.provisioner = p }
}

// WithSupervisor installs the recording process supervisor.
func WithSupervisor(s capture.Supervisor) Option {
	return func(o *Orchestrator) { o.supervisor = s }
}

// WithArchiveClient installs the recording artifact archive.
func WithArchiveClient(c store.ArchiveClient) Option {
	return func(o *Orchestrator) { o.archive = c }
}

// WithOwnerLease extends per-owner serialization across instances.
func WithOwnerLease(lease *OwnerLease) Option {
	return func(o *Orchestrator) { o.locks = newOwnerLocks(lease) }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithRecordingRoot sets the directory recordings are written under.
func WithRecordingRoot(root string) Option {
	return func(o *Orchestrator) { o.recordingRoot = root }
}

// WithRecordingSettle sets the pause between capture termination and
// artifact measurement.
func WithRecordingSettle(d time.Duration) Option {
	return func(o *Orchestrator) { o.recordingSettle = d }
}

// WithProbeClient overrides the HTTP client diagnostics fetch playback
// manifests with.
func WithProbeClient(client *http.Client) Option {
	return func(o *Orchestrator) { o.probe = client }
}

// WithCertProbe overrides how the certificate diagnostic obtains the chain
// the playback host presents.
func WithCertProbe(probe func(ctx context.Context, addr string) ([]*x509.Certificate, error)) Option {
	return func(o *Orchestrator) { o.peerCerts = probe }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires an orchestrator around the repository. Collaborators
// default to no-op implementations so tests can supply only what they
// exercise.
func NewOrchestrator(repo store.Repository, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:            repo,
		channel:         wowza.NoopChannel{},
		provisioner:     manifest.Noop{},
		archive:         store.NewArchiveClient(store.ArchiveConfig{}),
		locks:           newOwnerLocks(nil),
		logger:          slog.Default(),
		probe:           &http.Client{Timeout: 5 * time.Second},
		peerCerts:       defaultPeerCerts,
		recordingRoot:   "/var/lib/streamcast/content",
		recordingSettle: defaultRecordingSettle,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) loadEndpoint(ctx context.Context, ownerID string) (models.StreamEndpoint, error) {
	if ownerID == "" {
		return models.StreamEndpoint{}, validationErr("owner id is required")
	}
	ep, ok, err := o.repo.GetEndpoint(ctx, ownerID)
	if err != nil {
		return models.StreamEndpoint{}, internalErr("load endpoint", err)
	}
	if !ok {
		return models.StreamEndpoint{}, notFoundErr("endpoint for owner %s not found", ownerID)
	}
	return ep, nil
}

func (o *Orchestrator) server(ep models.StreamEndpoint) wowza.Server {
	return wowza.Server{
		Host:       ep.ServerHost,
		APIBaseURL: ep.APIBaseURL,
		Username:   ep.APIUsername,
		Password:   ep.APIPassword,
	}
}

// channelErr maps a control channel failure onto the operation error
// taxonomy, keeping the unreachable case distinguishable.
func channelErr(message string, err error) error {
	if errors.Is(err, wowza.ErrUnreachable) {
		return remoteErr(message+": media server state could not be determined", err)
	}
	return remoteErr(message, err)
}

// ToggleOn activates the owner's channel. Toggling an already running
// channel is a successful no-op; a blocked endpoint refuses to start.
func (o *Orchestrator) ToggleOn(ctx context.Context, ownerID string) (ToggleResult, error) {
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return ToggleResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return ToggleResult{}, err
	}
	if ep.Blocked {
		return ToggleResult{}, validationErr("endpoint for owner %s is blocked", ownerID)
	}
	running, err := o.channel.IsRunning(ctx, o.server(ep), ep.Login)
	if err != nil {
		return ToggleResult{}, channelErr("query channel state", err)
	}
	if running {
		return ToggleResult{Running: true, AlreadyInState: true}, nil
	}
	if err := o.channel.Activate(ctx, o.server(ep), ep.Login); err != nil {
		return ToggleResult{}, channelErr("activate channel", err)
	}
	o.logger.Info("channel activated", "owner_id", ownerID, "login", ep.Login)
	return ToggleResult{Running: true}, nil
}

// ToggleOff deactivates the owner's channel. Toggling an already stopped
// channel is a successful no-op.
func (o *Orchestrator) ToggleOff(ctx context.Context, ownerID string) (ToggleResult, error) {
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return ToggleResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return ToggleResult{}, err
	}
	running, err := o.channel.IsRunning(ctx, o.server(ep), ep.Login)
	if err != nil {
		return ToggleResult{}, channelErr("query channel state", err)
	}
	if !running {
		return ToggleResult{Running: false, AlreadyInState: true}, nil
	}
	if err := o.channel.Deactivate(ctx, o.server(ep), ep.Login); err != nil {
		return ToggleResult{}, channelErr("deactivate channel", err)
	}
	o.logger.Info("channel deactivated", "owner_id", ownerID, "login", ep.Login)
	return ToggleResult{Running: false}, nil
}

// Restart deactivates then reactivates the owner's channel. Either phase
// finding the channel already in the target state is fine; restart of a
// stopped channel is simply a start.
func (o *Orchestrator) Restart(ctx context.Context, ownerID string) (RestartResult, error) {
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return RestartResult{}, internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return RestartResult{}, err
	}
	if ep.Blocked {
		return RestartResult{}, validationErr("endpoint for owner %s is blocked", ownerID)
	}
	srv := o.server(ep)
	if err := o.channel.Deactivate(ctx, srv, ep.Login); err != nil {
		return RestartResult{}, channelErr("deactivate channel", err)
	}
	if err := o.channel.Activate(ctx, srv, ep.Login); err != nil {
		return RestartResult{Stopped: true}, channelErr("reactivate channel", err)
	}
	o.logger.Info("channel restarted", "owner_id", ownerID, "login", ep.Login)
	return RestartResult{Stopped: true, Started: true}, nil
}

// Block marks the endpoint blocked and forces its channel off. Requires an
// elevated actor. The deactivation is best effort so a dead media server
// cannot keep an endpoint unblockable.
func (o *Orchestrator) Block(ctx context.Context, actor Actor, ownerID string) error {
	if !models.ElevatedRole(actor.Role) {
		return authorizationErr("blocking an endpoint requires an elevated role")
	}
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return err
	}
	if err := o.channel.Deactivate(ctx, o.server(ep), ep.Login); err != nil {
		o.logger.Warn("deactivate on block failed", "owner_id", ownerID, "error", err)
	}
	if _, err := o.repo.SetEndpointBlocked(ctx, ownerID, true); err != nil {
		return internalErr("persist block flag", err)
	}
	o.logger.Info("endpoint blocked", "owner_id", ownerID, "actor_id", actor.ID)
	return nil
}

// Unblock clears the blocked flag. The channel stays off until the owner
// toggles it back on. Requires an elevated actor.
func (o *Orchestrator) Unblock(ctx context.Context, actor Actor, ownerID string) error {
	if !models.ElevatedRole(actor.Role) {
		return authorizationErr("unblocking an endpoint requires an elevated role")
	}
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return internalErr("acquire owner lock", err)
	}
	defer unlock()

	if _, err := o.loadEndpoint(ctx, ownerID); err != nil {
		return err
	}
	if _, err := o.repo.SetEndpointBlocked(ctx, ownerID, false); err != nil {
		return internalErr("persist block flag", err)
	}
	o.logger.Info("endpoint unblocked", "owner_id", ownerID, "actor_id", actor.ID)
	return nil
}

// Remove deactivates the channel and deletes the endpoint record. Requires
// an elevated actor, and refuses while a transmission is in progress. The
// channel deactivation is best effort so a dead media server cannot make an
// endpoint unremovable.
func (o *Orchestrator) Remove(ctx context.Context, actor Actor, ownerID string) error {
	if !models.ElevatedRole(actor.Role) {
		return authorizationErr("removing an endpoint requires an elevated role")
	}
	unlock, err := o.locks.acquire(ctx, ownerID)
	if err != nil {
		return internalErr("acquire owner lock", err)
	}
	defer unlock()

	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return err
	}
	tx, ok, err := o.repo.ActiveTransmission(ctx, ownerID)
	if err != nil {
		return internalErr("look up active transmission", err)
	}
	if ok {
		return validationErr("owner %s has transmission %s in progress, stop it before removal", ownerID, tx.ID)
	}
	if err := o.channel.Deactivate(ctx, o.server(ep), ep.Login); err != nil {
		o.logger.Warn("deactivate before removal failed", "owner_id", ownerID, "error", err)
	}
	if err := o.repo.DeleteEndpoint(ctx, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundErr("endpoint for owner %s not found", ownerID)
		}
		return internalErr("delete endpoint", err)
	}
	o.logger.Info("endpoint removed", "owner_id", ownerID, "actor_id", actor.ID)
	return nil
}

// Status reports the endpoint's running state alongside any active
// transmission.
func (o *Orchestrator) Status(ctx context.Context, ownerID string) (EndpointStatus, error) {
	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return EndpointStatus{}, err
	}
	running, err := o.channel.IsRunning(ctx, o.server(ep), ep.Login)
	if err != nil {
		return EndpointStatus{}, channelErr("query channel state", err)
	}
	status := EndpointStatus{
		Login:   ep.Login,
		Running: running,
		Blocked: ep.Blocked,
		URLs:    deriveSourceURLs(ep),
	}
	tx, ok, err := o.repo.ActiveTransmission(ctx, ownerID)
	if err != nil {
		return EndpointStatus{}, internalErr("load active transmission", err)
	}
	if ok {
		status.Transmission = &tx
	}
	return status, nil
}

// SourceURLs derives the published addresses for an owner's stream.
func (o *Orchestrator) SourceURLs(ctx context.Context, ownerID string) (SourceURLs, error) {
	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return SourceURLs{}, err
	}
	return deriveSourceURLs(ep), nil
}
