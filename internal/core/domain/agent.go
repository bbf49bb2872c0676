package domain

import "time"

type AgentID string

// SessionToken is issued by the server on HTTP registration and is valid
// for exactly one session.
type SessionToken string

// SessionState tracks the connection lifecycle of an agent.
type SessionState string

const (
	StateIdle                SessionState = "idle"
	StateDiscovering         SessionState = "discovering"
	StateHTTPRegistering     SessionState = "http_registering"
	StateChannelConnecting   SessionState = "channel_connecting"
	StateSessionRegistering  SessionState = "session_registering"
	StateStreaming           SessionState = "streaming"
	StateClosing             SessionState = "closing"
	StateClosed              SessionState = "closed"
	StateFailed              SessionState = "failed"
)

// Terminal reports whether no further transitions are possible from s.
func (s SessionState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// AgentConfig is the immutable identity and tuning of one simulated vehicle.
type AgentConfig struct {
	AgentID      AgentID
	Model        string
	Version      string
	JetsonSerial string

	BaseLat float64
	BaseLng float64

	Capabilities []string

	// Stream rates in Hz.
	TelemetryRate float64
	HeartbeatRate float64
	LogRate       float64
	CameraFPS     float64

	EnableCameraStreaming    bool
	EnableBinaryFrames       bool
	EnableCompression        bool
	EnableLatencyMeasurement bool

	FrameSkipThreshold int
}

// AgentState is the mutable simulated vehicle state. Owned exclusively by
// one Agent; callers outside the agent only ever see copies.
//
// JSON field names are the wire contract for telemetry_real.
type AgentState struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	AltitudeMSL      float64 `json:"altitude_msl"`
	AltitudeRelative float64 `json:"altitude_relative"`
	Armed            bool    `json:"armed"`
	FlightMode       string  `json:"flight_mode"`
	Connected        bool    `json:"connected"`
	GPSFix           string  `json:"gps_fix"`
	Satellites       int     `json:"satellites"`
	HDOP             float64 `json:"hdop"`
	PositionError    float64 `json:"position_error"`
	Voltage          float64 `json:"voltage"`
	Current          float64 `json:"current"`
	Percentage       float64 `json:"percentage"`
	Roll             float64 `json:"roll"`
	Pitch            float64 `json:"pitch"`
	Yaw              float64 `json:"yaw"`
	VelocityX        float64 `json:"velocity_x"`
	VelocityY        float64 `json:"velocity_y"`
	VelocityZ        float64 `json:"velocity_z"`
	Latency          float64 `json:"latency"`
	TeensyConnected  bool    `json:"teensy_connected"`
	LatchStatus      string  `json:"latch_status"`
}

// NewAgentState returns the initial vehicle state for a fresh agent.
func NewAgentState(cfg AgentConfig) AgentState {
	return AgentState{
		Latitude:         cfg.BaseLat,
		Longitude:        cfg.BaseLng,
		AltitudeMSL:      500.0,
		AltitudeRelative: 100.0,
		Armed:            true,
		FlightMode:       "AUTO",
		Connected:        false,
		GPSFix:           "GPS_OK",
		Satellites:       12,
		HDOP:             0.8,
		PositionError:    1.0,
		Voltage:          22.2,
		Current:          15.0,
		Percentage:       85.0,
		Latency:          50.0,
		TeensyConnected:  true,
		LatchStatus:      "OK",
	}
}

// AgentStatus is a point-in-time view of one agent, as reported to the
// fleet orchestrator and the status server.
type AgentStatus struct {
	AgentID   AgentID      `json:"droneId"`
	Model     string       `json:"model"`
	State     SessionState `json:"state"`
	Connected bool         `json:"connected"`
	Samples   int          `json:"samples"`
}

// TimestampMillis converts t to epoch milliseconds, the timestamp unit used
// on the wire.
func TimestampMillis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}

// MillisToTime converts an epoch-milliseconds wire timestamp back to time.Time.
func MillisToTime(ms float64) time.Time {
	return time.Unix(0, int64(ms*float64(time.Millisecond)))
}
