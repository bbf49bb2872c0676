package domain

import "encoding/json"

// Event names shared with the control server. Field names inside the
// payloads below are part of the wire contract and must not be renamed.
const (
	// Outbound.
	EventRegister          = "drone_register_real"
	EventTelemetry         = "telemetry_real"
	EventHeartbeat         = "heartbeat_real"
	EventMavros            = "mavros_real"
	EventCameraFrame       = "camera_frame"
	EventCameraFrameBinary = "camera_frame_binary"
	EventCameraStreamStart = "camera_stream_start"
	EventCameraStreamStop  = "camera_stream_stop"
	EventCommandResponse   = "command_response"
	EventPrecisionLand     = "precision_land_real"
	EventWebRTCOffer       = "webrtc_offer"

	// Inbound.
	EventRegistrationSuccess = "registration_success"
	EventRegistrationFailed  = "registration_failed"
	EventCommand             = "command"
	EventHeartbeatAck        = "heartbeat_ack"
	EventTelemetryAck        = "telemetry_ack"
	EventCameraFrameAck      = "camera_frame_ack"
	EventCameraStreamAck     = "camera_stream_ack"
	EventWebRTCRequestOffer  = "webrtc_request_offer"
	EventWebRTCAnswer        = "webrtc_answer"
	EventWebRTCICECandidate  = "webrtc_ice_candidate"
)

// SystemInfo describes the simulated companion computer in HTTP registration.
type SystemInfo struct {
	CPUCores  int    `json:"cpuCores"`
	RAMGB     int    `json:"ramGB"`
	StorageGB int    `json:"storageGB"`
	GPUModel  string `json:"gpuModel"`
	OSVersion string `json:"osVersion"`
}

// HTTPRegisterRequest is the POST /drone/register body.
type HTTPRegisterRequest struct {
	DroneID      AgentID    `json:"droneId"`
	Model        string     `json:"model"`
	Version      string     `json:"version"`
	JetsonSerial string     `json:"jetsonSerial"`
	Capabilities []string   `json:"capabilities"`
	SystemInfo   SystemInfo `json:"systemInfo"`
}

// HTTPRegisterResponse carries the session token back from the server.
type HTTPRegisterResponse struct {
	SessionToken SessionToken `json:"sessionToken"`
}

// JetsonInfo is embedded in channel-level registration.
type JetsonInfo struct {
	IP           string `json:"ip"`
	SerialNumber string `json:"serialNumber"`
	GPUMemoryMB  int    `json:"gpuMemory"`
}

// RegisterPayload is the drone_register_real payload.
type RegisterPayload struct {
	DroneID      AgentID    `json:"droneId"`
	Model        string     `json:"model"`
	Version      string     `json:"version"`
	Capabilities []string   `json:"capabilities"`
	JetsonInfo   JetsonInfo `json:"jetsonInfo"`
}

// JetsonMetrics are synthetic companion-computer metrics for heartbeats.
type JetsonMetrics struct {
	CPUUsage    float64 `json:"cpuUsage"`
	MemoryUsage float64 `json:"memoryUsage"`
	Temperature float64 `json:"temperature"`
	DiskUsage   float64 `json:"diskUsage"`
}

// NetworkMetrics are synthetic link metrics for heartbeats.
type NetworkMetrics struct {
	Latency    float64 `json:"latency"`
	PacketLoss float64 `json:"packetLoss"`
	Bandwidth  float64 `json:"bandwidth"`
}

// HeartbeatPayload is the heartbeat_real payload.
type HeartbeatPayload struct {
	Timestamp      float64        `json:"timestamp"`
	SequenceID     int64          `json:"sequence_id"`
	JetsonMetrics  JetsonMetrics  `json:"jetsonMetrics"`
	NetworkMetrics NetworkMetrics `json:"networkMetrics"`
}

// MavrosPayload is the mavros_real payload: one synthetic log line.
type MavrosPayload struct {
	Message    string  `json:"message"`
	RawMessage string  `json:"rawMessage"`
	Source     string  `json:"source"`
	Timestamp  float64 `json:"timestamp"`
	SessionID  string  `json:"sessionId"`
}

// CameraStreamConfig configures one camera stream on start.
type CameraStreamConfig struct {
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps"`
	Quality    string `json:"quality"`
	Transport  string `json:"transport,omitempty"`
}

// CameraStreamControl is the camera_stream_start / camera_stream_stop payload.
type CameraStreamControl struct {
	DroneID AgentID             `json:"droneId"`
	Camera  Camera              `json:"camera"`
	Config  *CameraStreamConfig `json:"config,omitempty"`
}

// CameraFrameMetadata describes one frame in both transports.
type CameraFrameMetadata struct {
	Resolution       string  `json:"resolution"`
	FPS              int     `json:"fps"`
	Quality          int     `json:"quality"`
	FrameNumber      uint32  `json:"frameNumber"`
	OriginalSize     int     `json:"originalSize,omitempty"`
	CompressedSize   int     `json:"compressedSize,omitempty"`
	CompressionRatio float64 `json:"compressionRatio,omitempty"`
	Transport        string  `json:"transport"`
}

// CameraFramePayload is the JSON fallback camera_frame payload; Frame holds
// a base64 text encoding of the synthetic frame.
type CameraFramePayload struct {
	DroneID   AgentID             `json:"droneId"`
	Camera    Camera              `json:"camera"`
	Timestamp float64             `json:"timestamp"`
	Frame     string              `json:"frame"`
	Metadata  CameraFrameMetadata `json:"metadata"`
}

// BinaryFrameMetadata announces a binary frame before its blob is sent.
type BinaryFrameMetadata struct {
	DroneID   AgentID             `json:"droneId"`
	Camera    Camera              `json:"camera"`
	Timestamp float64             `json:"timestamp"`
	Metadata  CameraFrameMetadata `json:"metadata"`
}

// AckPayload is the common shape of server acknowledgment events. Timestamp
// echoes the original outbound timestamp; a missing timestamp drops the
// latency sample.
type AckPayload struct {
	Timestamp        *float64 `json:"timestamp,omitempty"`
	ServerTimestamp  *float64 `json:"serverTimestamp,omitempty"`
	Camera           Camera   `json:"camera,omitempty"`
	Status           string   `json:"status,omitempty"`
	QueueSize        *int     `json:"queueSize,omitempty"`
	CompressionRatio *float64 `json:"compressionRatio,omitempty"`
}

// PrecisionLandPayload is the precision_land_real progress event.
type PrecisionLandPayload struct {
	Output           string  `json:"output"`
	Stage            string  `json:"stage"`
	Altitude         float64 `json:"altitude"`
	TargetDetected   bool    `json:"target_detected"`
	TargetConfidence float64 `json:"target_confidence"`
	LateralError     float64 `json:"lateral_error"`
	VerticalError    float64 `json:"vertical_error"`
	BatteryLevel     float64 `json:"battery_level"`
	WindSpeed        float64 `json:"wind_speed"`
}

// SessionDescription mirrors the WebRTC offer/answer wire shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// WebRTCOfferRequest is the inbound webrtc_request_offer payload.
type WebRTCOfferRequest struct {
	SessionID   string `json:"sessionId"`
	SessionType string `json:"sessionType"`
}

// WebRTCOfferPayload is the outbound webrtc_offer payload.
type WebRTCOfferPayload struct {
	Offer     SessionDescription `json:"offer"`
	DroneID   AgentID            `json:"droneId"`
	SessionID string             `json:"sessionId"`
}

// WebRTCAnswerPayload is the inbound webrtc_answer payload.
type WebRTCAnswerPayload struct {
	Answer    SessionDescription `json:"answer"`
	SessionID string             `json:"sessionId"`
}

// ICECandidate mirrors the candidate wire shape.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	SDPMid        string `json:"sdpMid"`
}

// WebRTCICEPayload carries ICE candidates in both directions.
type WebRTCICEPayload struct {
	Candidate ICECandidate `json:"candidate"`
	DroneID   AgentID      `json:"droneId,omitempty"`
	SessionID string       `json:"sessionId"`
}

// Envelope is the framing of every channel message.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
