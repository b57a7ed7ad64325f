// Package booth runs a lens booth: one rendering session fed by one camera,
// with a camera selector and a lens selector driving it.
package booth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/lensnode/internal/events"
	"github.com/smazurov/lensnode/internal/lenskit"
	"github.com/smazurov/lensnode/internal/logging"
	"github.com/smazurov/lensnode/internal/media"
	"github.com/smazurov/lensnode/internal/metrics"
)

// DefaultLensIndex is the catalog position applied when no lens id is configured.
const DefaultLensIndex = 19

// Phase is the booth lifecycle phase.
type Phase string

// Phases.
const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseFailed   Phase = "failed"
	PhaseStopped  Phase = "stopped"
)

// Config holds the booth settings.
type Config struct {
	APIToken    string
	LensGroupID string
	// DefaultLensID wins over DefaultLensIndex when it names a catalog lens.
	DefaultLensID string
	// DefaultLensIndex past the end of the catalog selects the last lens.
	// Negative disables the initial lens. Callers normally set DefaultLensIndex
	// (the package constant), since zero is a valid index.
	DefaultLensIndex int
	// StartupTimeout bounds Start. Zero means no limit.
	StartupTimeout time.Duration
}

// Status is the user-visible booth state.
type Status struct {
	Phase Phase  `json:"phase" enum:"idle,starting,running,failed,stopped" doc:"Lifecycle phase"`
	Stage string `json:"stage,omitempty" doc:"Failing startup stage"`
	Code  string `json:"code,omitempty" doc:"Error code of the last failure"`
	Error string `json:"error,omitempty" doc:"Error message of the last failure"`
	RunID string `json:"run_id,omitempty" doc:"Identifier of the current start attempt"`
}

// SourceState describes the bound camera.
type SourceState struct {
	DeviceID  string `json:"device_id" doc:"Bound camera"`
	StreamID  string `json:"stream_id" doc:"Capture stream"`
	Transform string `json:"transform" doc:"Source transform"`
}

// Snapshot is a consistent copy of everything the booth page renders.
type Snapshot struct {
	Status         Status        `json:"status"`
	Stage          StageState    `json:"stage"`
	Source         *SourceState  `json:"source,omitempty"`
	LastGoodDevice string        `json:"last_good_device,omitempty" doc:"Device Retry rebinds"`
	Lens           *lenskit.Lens `json:"lens,omitempty" doc:"Applied lens"`
}

// Option configures a Booth.
type Option func(*Booth)

// WithEventBus publishes booth events on bus.
func WithEventBus(bus *events.Bus) Option {
	return func(b *Booth) {
		b.bus = bus
	}
}

// WithView wraps the stage view, for mirroring or observing render calls.
func WithView(wrap func(View) View) Option {
	return func(b *Booth) {
		b.view = wrap(b.view)
	}
}

// Booth orchestrates runtime, session, camera and lens selection.
type Booth struct {
	cfg          Config
	platform     media.Platform
	bootstrapper lenskit.Bootstrapper
	bus          *events.Bus
	logger       *slog.Logger
	stage        *Stage
	view         View

	mu          sync.Mutex
	status      Status
	binder      *sourceBinder
	runtime     lenskit.Runtime
	session     lenskit.Session
	lenses      []lenskit.Lens
	lens        *lenskit.Lens
	startCancel context.CancelFunc
}

// New creates an idle booth.
func New(cfg Config, platform media.Platform, bootstrapper lenskit.Bootstrapper, opts ...Option) *Booth {
	stage := NewStage()
	b := &Booth{
		cfg:          cfg,
		platform:     platform,
		bootstrapper: bootstrapper,
		logger:       logging.GetLogger("booth"),
		stage:        stage,
		view:         stage,
		status:       Status{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start bootstraps the runtime and brings the booth up, in this order:
// runtime, session, output mount, lens catalog, default lens, default camera,
// camera selector, lens selector. The first failure aborts the rest, releases
// everything acquired so far and is returned as an *Error.
func (b *Booth) Start(ctx context.Context) error {
	b.mu.Lock()
	switch b.status.Phase {
	case PhaseStarting, PhaseRunning:
		b.mu.Unlock()
		return ErrAlreadyStarted
	case PhaseStopped:
		b.mu.Unlock()
		return fmt.Errorf("booth shut down: %w", ErrNotStarted)
	}
	if b.cfg.StartupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.StartupTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.startCancel = cancel
	b.binder = newSourceBinder(b.platform, b.logger)
	b.lenses, b.lens = nil, nil
	b.status = Status{Phase: PhaseStarting, RunID: uuid.NewString()}
	runID := b.status.RunID
	b.mu.Unlock()

	b.publishState()
	logger := b.logger.With("run_id", runID)
	logger.Info("Starting booth", "lens_group", b.cfg.LensGroupID)
	began := time.Now()

	if err := b.start(ctx, logger); err != nil {
		b.fail(err)
		logger.Error("Booth startup failed", "error", err)
		return err
	}

	b.mu.Lock()
	if b.status.Phase != PhaseStarting {
		// Shut down while starting.
		b.mu.Unlock()
		b.teardown()
		return fmt.Errorf("booth shut down during startup: %w", ErrNotStarted)
	}
	b.status.Phase = PhaseRunning
	b.startCancel = nil
	b.mu.Unlock()

	metrics.ObserveStartup(time.Since(began))
	b.publishState()
	logger.Info("Booth running", "elapsed", time.Since(began))
	return nil
}

func (b *Booth) start(ctx context.Context, logger *slog.Logger) error {
	rt, err := b.bootstrapper.Bootstrap(ctx, b.cfg.APIToken)
	if err != nil {
		return newError(ErrCodeBootstrapFailed, StageBootstrap, "bootstrap runtime", err)
	}
	b.mu.Lock()
	b.runtime = rt
	b.mu.Unlock()

	session, err := rt.CreateSession(ctx)
	if err != nil {
		return newError(ErrCodeSessionFailed, StageSession, "create session", err)
	}
	b.mu.Lock()
	b.session = session
	b.mu.Unlock()
	logger.Info("Session created", "session_id", session.ID())

	b.view.MountOutput(session.Output())

	lenses, err := rt.Lenses().LoadLensGroups(ctx, []string{b.cfg.LensGroupID})
	if err != nil {
		return newError(ErrCodeCatalogFailed, StageCatalog, "load lens group "+b.cfg.LensGroupID, err)
	}
	b.mu.Lock()
	b.lenses = lenses
	b.mu.Unlock()
	logger.Info("Lens catalog loaded", "count", len(lenses))

	if lens, ok := b.defaultLens(lenses); ok {
		if err := b.applyLens(ctx, session, lens); err != nil {
			return err
		}
	} else {
		logger.Warn("No initial lens applied", "catalog_size", len(lenses))
	}

	if err := b.BindSource(ctx, ""); err != nil {
		return err
	}

	if err := b.refreshDevices(ctx, "initial"); err != nil {
		return err
	}
	b.stage.Cameras.OnChange(b.onCameraChange)

	b.BindLensSelector(lenses, session)
	return nil
}

// fail records err as the booth status and releases the stream, session and runtime.
func (b *Booth) fail(err error) {
	var be *Error
	status := Status{Phase: PhaseFailed, Error: err.Error()}
	if errors.As(err, &be) {
		status.Stage, status.Code = be.Stage, be.Code
	}

	b.mu.Lock()
	status.RunID = b.status.RunID
	stopped := b.status.Phase == PhaseStopped
	if !stopped {
		b.status = status
	}
	b.startCancel = nil
	b.mu.Unlock()

	b.teardown()
	if !stopped {
		b.publishState()
	}
}

// Shutdown releases the camera and disposes of the session and runtime.
// In-flight binds and startup are cancelled. Calling it again is a no-op.
func (b *Booth) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.status.Phase == PhaseStopped {
		b.mu.Unlock()
		return nil
	}
	b.status.Phase = PhaseStopped
	if b.startCancel != nil {
		b.startCancel()
		b.startCancel = nil
	}
	b.mu.Unlock()

	err := b.teardownContext(ctx)
	b.publishState()
	b.logger.Info("Booth shut down")
	return err
}

func (b *Booth) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.teardownContext(ctx); err != nil {
		b.logger.Warn("Teardown incomplete", "error", err)
	}
}

// teardownContext stops the stream before closing the session, then the runtime.
// Each resource is detached under the lock so concurrent teardowns close it once.
func (b *Booth) teardownContext(ctx context.Context) error {
	b.mu.Lock()
	binder, session, rt := b.binder, b.session, b.runtime
	b.session, b.runtime = nil, nil
	b.mu.Unlock()

	var errs []error
	if binder != nil {
		if err := binder.close(ctx, session); err != nil {
			errs = append(errs, fmt.Errorf("release camera: %w", err))
		}
	}
	if session != nil {
		if err := session.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	}
	if rt != nil {
		if err := rt.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close runtime: %w", err))
		}
	}
	b.view.Unmount()
	return errors.Join(errs...)
}

// BindSource binds deviceID ("" for the default camera) as the session source,
// mirrored. On a capture failure no stream is active, the session stays paused
// and the previous device is kept for Retry.
func (b *Booth) BindSource(ctx context.Context, deviceID string) error {
	b.mu.Lock()
	binder, session := b.binder, b.session
	b.mu.Unlock()
	if binder == nil || session == nil {
		return ErrNotStarted
	}

	stream, err := binder.bind(ctx, session, deviceID)
	switch {
	case err == nil:
		metrics.RecordBind(metrics.BindOK)
		b.syncCamera(binder, nil)
		b.logger.Info("Source bound", "device_id", stream.DeviceID(), "stream_id", stream.ID())
		b.publish(events.SourceBoundEvent{
			DeviceID:  stream.DeviceID(),
			StreamID:  stream.ID(),
			Transform: lenskit.TransformMirrorX.String(),
			Timestamp: now(),
		})
		return nil

	case errors.Is(err, ErrSuperseded):
		metrics.RecordBind(metrics.BindSuperseded)
		b.logger.Debug("Bind superseded", "device_id", deviceID)
		return err

	default:
		metrics.RecordBind(metrics.BindFailed)
		b.logger.Warn("Bind failed", "device_id", deviceID, "error", err)
		b.syncCamera(binder, err)
		if errors.Is(err, ErrCaptureUnavailable) {
			b.publish(events.CaptureErrorEvent{
				DeviceID:  deviceID,
				Message:   "Camera unavailable",
				Error:     err.Error(),
				Timestamp: now(),
			})
		}
		return err
	}
}

// syncCamera points the camera selector at the bound camera, or the last good
// one when nothing is bound, and records or clears a bind failure in the
// status. Only a running booth is touched; during startup the selector is
// filled afterwards and a failure fails the start.
func (b *Booth) syncCamera(binder *sourceBinder, bindErr error) {
	b.mu.Lock()
	if b.status.Phase != PhaseRunning {
		b.mu.Unlock()
		return
	}
	prev := b.status
	b.status.Stage, b.status.Code, b.status.Error = "", "", ""
	if bindErr != nil {
		b.status.Stage, b.status.Code, b.status.Error = StageCapture, ErrCodeCaptureUnavailable, bindErr.Error()
		var be *Error
		if errors.As(bindErr, &be) {
			b.status.Stage, b.status.Code = be.Stage, be.Code
		}
	}
	changed := b.status != prev
	b.mu.Unlock()

	selected := binder.lastGoodDevice()
	if stream, _ := binder.boundSource(); stream != nil {
		selected = stream.DeviceID()
	}
	b.view.SetCameraOptions(b.stage.Cameras.State().Options, selected)
	if changed {
		b.publishState()
	}
}

// BindLensSelector fills the lens selector from lenses, in catalog order, and
// applies the chosen lens to session on every change. A selection that is not
// in lenses is ignored.
func (b *Booth) BindLensSelector(lenses []lenskit.Lens, session lenskit.Session) {
	options := make([]Choice, len(lenses))
	for i, lens := range lenses {
		options[i] = Choice{Value: lens.ID, Label: lens.Name}
	}

	selected := ""
	b.mu.Lock()
	if b.lens != nil {
		selected = b.lens.ID
	}
	b.mu.Unlock()
	b.view.SetLensOptions(options, selected)

	b.stage.Lenses.OnChange(func(ctx context.Context, id string) error {
		lens, ok := findLens(lenses, id)
		if !ok {
			b.logger.Debug("Ignoring unknown lens selection", "lens_id", id)
			return nil
		}
		return b.applyLens(ctx, session, lens)
	})
}

func (b *Booth) applyLens(ctx context.Context, session lenskit.Session, lens lenskit.Lens) error {
	if err := session.ApplyLens(ctx, lens); err != nil {
		return newError(ErrCodeLensFailed, StageLens, "apply lens "+lens.ID, err)
	}

	b.mu.Lock()
	b.lens = &lens
	b.mu.Unlock()

	metrics.RecordLensApplied()
	b.logger.Info("Lens applied", "lens_id", lens.ID, "name", lens.Name)
	b.publish(events.LensAppliedEvent{
		LensID:    lens.ID,
		Name:      lens.Name,
		GroupID:   lens.GroupID,
		Timestamp: now(),
	})
	return nil
}

// defaultLens picks the configured lens id, else the configured index.
func (b *Booth) defaultLens(lenses []lenskit.Lens) (lenskit.Lens, bool) {
	if len(lenses) == 0 {
		return lenskit.Lens{}, false
	}
	if id := b.cfg.DefaultLensID; id != "" {
		if lens, ok := findLens(lenses, id); ok {
			return lens, true
		}
		b.logger.Warn("Default lens not in catalog, using index", "lens_id", id, "index", b.cfg.DefaultLensIndex)
	}

	idx := b.cfg.DefaultLensIndex
	if idx < 0 {
		return lenskit.Lens{}, false
	}
	if idx >= len(lenses) {
		b.logger.Warn("Default lens index past end of catalog, using last lens",
			"index", idx, "catalog_size", len(lenses))
		idx = len(lenses) - 1
	}
	return lenses[idx], true
}

func (b *Booth) onCameraChange(ctx context.Context, deviceID string) error {
	return b.BindSource(ctx, deviceID)
}

// refreshDevices re-enumerates cameras into the camera selector.
func (b *Booth) refreshDevices(ctx context.Context, action string) error {
	devices, err := media.ListVideoInputDevices(ctx, b.platform)
	if err != nil {
		return newError(ErrCodeDevicesFailed, StageDevices, "list cameras", err)
	}

	options := make([]Choice, len(devices))
	infos := make([]events.DeviceInfo, len(devices))
	for i, d := range devices {
		label := d.Label
		if label == "" {
			label = fmt.Sprintf("Camera %d", i+1)
		}
		options[i] = Choice{Value: d.DeviceID, Label: label}
		infos[i] = events.DeviceInfo{DeviceID: d.DeviceID, Label: label}
	}

	selected := b.stage.Cameras.Selected()
	if stream, _ := b.currentBinder().boundSource(); stream != nil {
		selected = stream.DeviceID()
	}
	b.view.SetCameraOptions(options, selected)

	metrics.SetVideoInputs(len(devices))
	b.logger.Debug("Cameras enumerated", "count", len(devices), "action", action)
	b.publish(events.DeviceDiscoveryEvent{Action: action, Devices: infos, Timestamp: now()})
	return nil
}

// RefreshDevices rebuilds the camera selector; the hotplug watcher calls it.
func (b *Booth) RefreshDevices(ctx context.Context) error {
	if b.Phase() != PhaseRunning {
		return ErrNotStarted
	}
	return b.refreshDevices(ctx, "changed")
}

// SelectCamera selects deviceID in the camera selector, rebinding the source.
func (b *Booth) SelectCamera(ctx context.Context, deviceID string) error {
	if b.Phase() != PhaseRunning {
		return ErrNotStarted
	}
	if !b.stage.Cameras.Has(deviceID) {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	b.publish(events.SelectionChangedEvent{Selector: "camera", Value: deviceID, Timestamp: now()})
	return b.stage.Cameras.Select(ctx, deviceID)
}

// SelectLens selects lensID in the lens selector, applying it to the session.
// An id outside the catalog changes nothing and returns ErrUnknownLens.
func (b *Booth) SelectLens(ctx context.Context, lensID string) error {
	if b.Phase() != PhaseRunning {
		return ErrNotStarted
	}
	known := b.stage.Lenses.Has(lensID)
	if known {
		b.publish(events.SelectionChangedEvent{Selector: "lens", Value: lensID, Timestamp: now()})
	}
	if err := b.stage.Lenses.Select(ctx, lensID); err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownLens, lensID)
	}
	return nil
}

// Retry recovers from a failure: a failed booth is started again, a running
// booth rebinds the last camera that bound successfully.
func (b *Booth) Retry(ctx context.Context) error {
	switch b.Phase() {
	case PhaseFailed:
		return b.Start(ctx)
	case PhaseRunning:
		return b.BindSource(ctx, b.currentBinder().lastGoodDevice())
	default:
		return ErrNotStarted
	}
}

// Phase returns the lifecycle phase.
func (b *Booth) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status.Phase
}

// Lenses returns the loaded catalog.
func (b *Booth) Lenses() []lenskit.Lens {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]lenskit.Lens(nil), b.lenses...)
}

// Devices lists video inputs, or every media device when all is set.
func (b *Booth) Devices(ctx context.Context, all bool) ([]media.DeviceDescriptor, error) {
	if all {
		return b.platform.EnumerateDevices(ctx)
	}
	return media.ListVideoInputDevices(ctx, b.platform)
}

// Snapshot returns the current stage, status, source and lens.
func (b *Booth) Snapshot() Snapshot {
	b.mu.Lock()
	snap := Snapshot{Status: b.status}
	if b.lens != nil {
		lens := *b.lens
		snap.Lens = &lens
	}
	binder := b.binder
	b.mu.Unlock()

	snap.Stage = b.stage.State()
	if binder != nil {
		if stream, source := binder.boundSource(); stream != nil {
			snap.Source = &SourceState{
				DeviceID:  stream.DeviceID(),
				StreamID:  stream.ID(),
				Transform: source.Transform().String(),
			}
		}
		snap.LastGoodDevice = binder.lastGoodDevice()
	}
	return snap
}

func (b *Booth) currentBinder() *sourceBinder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.binder == nil {
		return newSourceBinder(b.platform, b.logger)
	}
	return b.binder
}

func (b *Booth) publishState() {
	b.mu.Lock()
	status := b.status
	b.mu.Unlock()

	metrics.SetPhase(string(status.Phase))
	b.publish(events.BoothStateEvent{
		Phase:     string(status.Phase),
		Stage:     status.Stage,
		Code:      status.Code,
		Error:     status.Error,
		Timestamp: now(),
	})
}

func (b *Booth) publish(ev events.Event) {
	if b.bus != nil {
		b.bus.Publish(ev)
	}
}

func findLens(lenses []lenskit.Lens, id string) (lenskit.Lens, bool) {
	for _, lens := range lenses {
		if lens.ID == id {
			return lens, true
		}
	}
	return lenskit.Lens{}, false
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
