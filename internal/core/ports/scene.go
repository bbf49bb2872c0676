package ports

import "skyfleet/internal/core/domain"

// SceneGenerator produces the synthetic filler content of the simulation:
// frame payloads, heartbeat metrics, log lines and vehicle motion. It is a
// seam so tests can inject deterministic values.
type SceneGenerator interface {
	// FramePayload returns a codec-like byte stream for one frame of the
	// given type. Key frames are larger and denser than delta frames.
	FramePayload(frameType domain.FrameType) []byte

	// SceneFrame returns the structured record used by the JSON fallback
	// camera transport.
	SceneFrame(camera domain.Camera, frameNumber uint32, timestampMs float64) map[string]interface{}

	JetsonMetrics() domain.JetsonMetrics
	NetworkMetrics() domain.NetworkMetrics

	// LogLine returns one synthetic flight-controller log line; a small
	// fraction are injected error lines.
	LogLine() string

	// Animate advances the vehicle state along the synthetic flight path.
	Animate(st *domain.AgentState, baseLat, baseLng, flightTime float64)
}

// MetricsSink receives fleet-level operational metrics. A nil sink is
// allowed everywhere; callers must check.
type MetricsSink interface {
	AgentConnected()
	AgentDisconnected()
	SetStreamsActive(n int)
	RecordFrame(camera string, bytes int)
	RecordCommand(commandType string)
	RecordReconnect()
	ObserveLatency(category string, seconds float64)
}
