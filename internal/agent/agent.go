package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"skyfleet/internal/core/domain"
	"skyfleet/internal/core/ports"
	"skyfleet/internal/core/services"
	apperrors "skyfleet/pkg/errors"
	"skyfleet/pkg/tracing"
)

// Options wires one Agent to its collaborators.
type Options struct {
	Config domain.AgentConfig

	RegistrationTimeout time.Duration
	ReconnectAttempts   int
	ReconnectDelay      time.Duration

	Registration ports.RegistrationClient
	Dialer       ports.Dialer
	Scene        ports.SceneGenerator
	Metrics      ports.MetricsSink // optional
	Logger       *zap.SugaredLogger
}

// Agent drives one simulated vehicle through the session lifecycle:
// discovery, HTTP registration, channel connect, session registration,
// streaming. On channel loss it tears down its streams and retries the
// whole sequence from discovery.
type Agent struct {
	cfg          domain.AgentConfig
	regTimeout   time.Duration
	maxReconnect int
	reconnectDur time.Duration

	registration ports.RegistrationClient
	dialer       ports.Dialer
	scene        ports.SceneGenerator
	metrics      ports.MetricsSink
	recorder     *services.LatencyRecorder
	encoder      *services.FrameEncoder
	logger       *zap.SugaredLogger

	mu            sync.Mutex
	state         domain.SessionState
	token         domain.SessionToken
	channel       ports.Channel
	vehicle       domain.AgentState
	flightTime    float64
	globalSeq     uint32
	frameCounters map[domain.Camera]uint32
	cameraMetrics map[domain.Camera]*domain.CameraMetrics
	pacers        map[domain.Camera]*services.Pacer
	streams       *streamHandles
	landing       *landingRun
	webrtc        *webrtcSessions

	pendingMu sync.Mutex
	pending   map[pendingKey]int // send timestamp -> payload size

	regAck       chan error
	disconnectCh chan error

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

type pendingKey struct {
	category domain.LatencyCategory
	sendTS   float64
}

func New(opts Options) *Agent {
	if opts.RegistrationTimeout <= 0 {
		opts.RegistrationTimeout = 10 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}

	a := &Agent{
		cfg:          opts.Config,
		regTimeout:   opts.RegistrationTimeout,
		maxReconnect: opts.ReconnectAttempts,
		reconnectDur: opts.ReconnectDelay,
		registration: opts.Registration,
		dialer:       opts.Dialer,
		scene:        opts.Scene,
		metrics:      opts.Metrics,
		recorder:     services.NewLatencyRecorder(),
		encoder:      services.NewFrameEncoder(opts.Config.EnableCompression),
		logger:       opts.Logger.With("drone_id", opts.Config.AgentID),
		state:        domain.StateIdle,
		vehicle:      domain.NewAgentState(opts.Config),
		pending:      make(map[pendingKey]int),
		regAck:       make(chan error, 1),
		disconnectCh: make(chan error, 1),
		shutdownCh:   make(chan struct{}),
	}
	a.resetStreamState()
	a.webrtc = newWebRTCSessions(a)
	return a
}

// Recorder exposes the agent's latency samples to the orchestrator.
func (a *Agent) Recorder() *services.LatencyRecorder { return a.recorder }

// Status returns a point-in-time view of the agent.
func (a *Agent) Status() domain.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	samples := 0
	for _, s := range a.recorder.AllSamples() {
		samples += len(s)
	}
	return domain.AgentStatus{
		AgentID:   a.cfg.AgentID,
		Model:     a.cfg.Model,
		State:     a.state,
		Connected: a.state == domain.StateStreaming,
		Samples:   samples,
	}
}

// VehicleState returns a copy of the simulated vehicle state.
func (a *Agent) VehicleState() domain.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.vehicle
}

func (a *Agent) State() domain.SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s domain.SessionState) {
	a.mu.Lock()
	prev := a.state
	a.state = s
	a.mu.Unlock()
	if prev != s {
		a.logger.Debugw("session state change", "from", prev, "to", s)
	}
}

// resetStreamState clears everything tied to one connection: pacers,
// frame counters and camera metrics start fresh on every session.
func (a *Agent) resetStreamState() {
	a.frameCounters = make(map[domain.Camera]uint32)
	a.cameraMetrics = make(map[domain.Camera]*domain.CameraMetrics)
	a.pacers = make(map[domain.Camera]*services.Pacer)
	for _, cam := range domain.Cameras() {
		a.frameCounters[cam] = 0
		a.cameraMetrics[cam] = &domain.CameraMetrics{}
		a.pacers[cam] = services.NewPacer(cam, a.cfg.CameraFPS)
	}
}

// Run drives the session until the context is cancelled, Shutdown is
// called, or the reconnect budget is exhausted.
func (a *Agent) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := a.runSession(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			a.teardown(domain.StateClosed)
			return nil
		}
		select {
		case <-a.shutdownCh:
			a.teardown(domain.StateClosed)
			return nil
		default:
		}

		if !apperrors.IsRetryable(err) || attempt >= a.maxReconnect {
			a.teardown(domain.StateFailed)
			a.logger.Errorw("session failed permanently", "error", err, "attempts", attempt)
			return err
		}

		attempt++
		if a.metrics != nil {
			a.metrics.RecordReconnect()
		}
		a.logger.Warnw("session lost, reconnecting", "error", err, "attempt", attempt)

		select {
		case <-ctx.Done():
			a.teardown(domain.StateClosed)
			return nil
		case <-a.shutdownCh:
			a.teardown(domain.StateClosed)
			return nil
		case <-time.After(a.reconnectDur):
		}
	}
}

// runSession performs one full connect sequence and blocks while
// streaming. Returns nil only on clean shutdown.
func (a *Agent) runSession(ctx context.Context) error {
	// Drain signals left over from a previous connection.
	select {
	case <-a.disconnectCh:
	default:
	}
	select {
	case <-a.regAck:
	default:
	}

	// Discovery
	a.setState(domain.StateDiscovering)
	sctx, span := tracing.TraceSessionStage(ctx, string(a.cfg.AgentID), "discover")
	discoverStart := time.Now()
	err := a.registration.Discover(sctx)
	span.End()
	if err != nil {
		return err
	}
	if a.cfg.EnableLatencyMeasurement {
		seq := a.recorder.NextSequence(domain.CategoryDiscovery)
		a.recorder.Record(domain.CategoryDiscovery,
			domain.TimestampMillis(discoverStart), domain.TimestampMillis(time.Now()), 0, seq)
	}

	// HTTP registration
	a.setState(domain.StateHTTPRegistering)
	sctx, span = tracing.TraceSessionStage(ctx, string(a.cfg.AgentID), "register_http")
	regStart := time.Now()
	token, err := a.registration.Register(sctx, a.registerRequest())
	span.End()
	if err != nil {
		return err
	}
	if a.cfg.EnableLatencyMeasurement {
		seq := a.recorder.NextSequence(domain.CategoryRegistration)
		a.recorder.Record(domain.CategoryRegistration,
			domain.TimestampMillis(regStart), domain.TimestampMillis(time.Now()), 0, seq)
	}

	a.mu.Lock()
	a.token = token
	a.mu.Unlock()

	// Channel connect
	a.setState(domain.StateChannelConnecting)
	channel, err := a.dialer.Dial(ctx, a.routes(), a.onChannelLost)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.channel = channel
	a.mu.Unlock()

	// Session registration over the channel, confirmed by the server.
	a.setState(domain.StateSessionRegistering)
	if err := channel.Emit(domain.EventRegister, a.registerPayload()); err != nil {
		channel.Close()
		return apperrors.WrapError(err, apperrors.ErrCodeTransport, "send session registration").
			WithReason("session_registration_failed")
	}

	select {
	case err := <-a.regAck:
		if err != nil {
			channel.Close()
			return err
		}
	case <-time.After(a.regTimeout):
		channel.Close()
		return apperrors.WrapError(domain.ErrRegistrationTimeout, apperrors.ErrCodeTimeout, "session registration").
			WithReason("session_registration_timeout")
	case <-ctx.Done():
		channel.Close()
		return ctx.Err()
	case <-a.shutdownCh:
		channel.Close()
		return fmt.Errorf("shutdown during registration")
	case err := <-a.disconnectCh:
		// Channel dropped while waiting for the server's confirmation.
		// Retry immediately instead of sitting out the timeout, and
		// discard the token so the next attempt registers afresh.
		a.mu.Lock()
		a.token = ""
		a.channel = nil
		a.mu.Unlock()
		channel.Close()
		return apperrors.WrapError(err, apperrors.ErrCodeTransport, "channel lost during registration").
			WithReason("channel_lost")
	}

	// Streaming
	a.mu.Lock()
	a.vehicle.Connected = true
	a.mu.Unlock()
	a.setState(domain.StateStreaming)
	if a.metrics != nil {
		a.metrics.AgentConnected()
	}
	a.logger.Infow("session established", "model", a.cfg.Model)

	a.startStreams()

	select {
	case err := <-a.disconnectCh:
		a.onSessionEnd()
		return apperrors.WrapError(err, apperrors.ErrCodeTransport, "channel lost").
			WithReason("channel_lost")
	case <-ctx.Done():
		a.closeSession()
		return nil
	case <-a.shutdownCh:
		a.closeSession()
		return nil
	}
}

// onChannelLost is installed as the channel's disconnect callback.
func (a *Agent) onChannelLost(err error) {
	select {
	case a.disconnectCh <- err:
	default:
	}
}

// onSessionEnd cleans up after an involuntary channel loss: streams stop,
// the session token is discarded and per-connection counters reset.
func (a *Agent) onSessionEnd() {
	a.setState(domain.StateClosing)
	a.stopStreams()
	a.stopLanding()
	a.webrtc.closeAll()

	a.mu.Lock()
	a.token = ""
	a.channel = nil
	a.vehicle.Connected = false
	a.resetStreamState()
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.AgentDisconnected()
	}
}

/// closeSession performs the voluntary goodbye: stop notifications for
// every camera, then stream teardown and channel close.
func (a *Agent) closeSession() {
	a.setState(domain.StateClosing)

	a.mu.Lock()
	channel := a.channel
	a.mu.Unlock()

	if channel != nil && a.cfg.EnableCameraStreaming {
		for _, cam := range domain.Cameras() {
			channel.Emit(domain.EventCameraStreamStop, domain.CameraStreamControl{
				DroneID: a.cfg.AgentID,
				Camera:  cam,
			})
		}
	}

	a.stopStreams()
	a.stopLanding()
	a.webrtc.closeAll()

	a.mu.Lock()
	if a.channel != nil {
		a.channel.Close()
		a.channel = nil
	}
	a.token = ""
	a.vehicle.Connected = false
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.AgentDisconnected()
	}
	a.setState(domain.StateClosed)
	a.logger.Infow("session closed")
}

func (a *Agent) teardown(final domain.SessionState) {
	a.stopStreams()
	a.stopLanding()
	a.webrtc.closeAll()

	a.mu.Lock()
	if a.channel != nil {
		a.channel.Close()
		a.channel = nil
	}
	a.token = ""
	a.mu.Unlock()
	a.setState(final)
}

// Shutdown requests a clean stop. Safe to call multiple times and from
// any goroutine; Run returns shortly after.
func (a *Agent) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

func (a *Agent) registerRequest() domain.HTTPRegisterRequest {
	return domain.HTTPRegisterRequest{
		DroneID:      a.cfg.AgentID,
		Model:        a.cfg.Model,
		Version:      a.cfg.Version,
		JetsonSerial: a.cfg.JetsonSerial,
		Capabilities: a.cfg.Capabilities,
		SystemInfo: domain.SystemInfo{
			CPUCores:  4,
			RAMGB:     4,
			StorageGB: 32,
			GPUModel:  "Maxwell",
			OSVersion: "Ubuntu 18.04",
		},
	}
}

func (a *Agent) registerPayload() domain.RegisterPayload {
	caps := append([]string{}, a.cfg.Capabilities...)
	if a.cfg.EnableBinaryFrames {
		caps = append(caps, "binary_frames")
	}
	if a.cfg.EnableCompression {
		caps = append(caps, "frame_compression")
	}
	caps = append(caps, "adaptive_quality", "queue_feedback")

	return domain.RegisterPayload{
		DroneID:      a.cfg.AgentID,
		Model:        a.cfg.Model,
		Version:      a.cfg.Version,
		Capabilities: caps,
		JetsonInfo: domain.JetsonInfo{
			IP:           "192.168.1.100",
			SerialNumber: a.cfg.JetsonSerial,
			GPUMemoryMB:  4096,
		},
	}
}

// emit sends an event if the channel is up.
func (a *Agent) emit(event string, payload interface{}) error {
	a.mu.Lock()
	channel := a.channel
	a.mu.Unlock()
	if channel == nil {
		return domain.ErrNotStreaming
	}
	return channel.Emit(event, payload)
}

func (a *Agent) emitBinary(event string, metadata interface{}, data []byte) error {
	a.mu.Lock()
	channel := a.channel
	a.mu.Unlock()
	if channel == nil {
		return domain.ErrNotStreaming
	}
	return channel.EmitBinary(event, metadata, data)
}

// trackPending remembers the payload size of an in-flight message so the
// matching ack can record a complete latency sample.
func (a *Agent) trackPending(category domain.LatencyCategory, sendTS float64, size int) {
	if !a.cfg.EnableLatencyMeasurement {
		return
	}
	a.pendingMu.Lock()
	a.pending[pendingKey{category, sendTS}] = size
	a.pendingMu.Unlock()
}

// takePending pops the payload size for an acked message. The second
// return is false when the send was never tracked.
func (a *Agent) takePending(category domain.LatencyCategory, sendTS float64) (int, bool) {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	size, ok := a.pending[pendingKey{category, sendTS}]
	if ok {
		delete(a.pending, pendingKey{category, sendTS})
	}
	return size, ok
}
