package domain

// LatencyCategory names one round-trip measurement class.
type LatencyCategory string

const (
	CategoryDiscovery    LatencyCategory = "discovery"
	CategoryRegistration LatencyCategory = "registration"
	CategoryTelemetry    LatencyCategory = "telemetry"
	CategoryHeartbeat    LatencyCategory = "heartbeat"
	CategoryCamera       LatencyCategory = "camera"
	CategoryCommand      LatencyCategory = "command"
	CategoryWebRTC       LatencyCategory = "webrtc"
)

// LatencyMeasurement is one immutable round-trip sample. Samples are
// append-only; sequence ids increase monotonically per (agent, category).
type LatencyMeasurement struct {
	Category     LatencyCategory `json:"measurement_type"`
	SendTS       float64         `json:"send_timestamp"`
	ReceiveTS    float64         `json:"receive_timestamp"`
	LatencyMs    float64         `json:"latency_ms"`
	PayloadBytes int             `json:"payload_size_bytes"`
	SequenceID   int64           `json:"sequence_id"`
}

// LatencyStats is derived on demand from the sample set of one category.
type LatencyStats struct {
	Category        LatencyCategory `json:"measurement_type"`
	Count           int             `json:"count"`
	MinMs           float64         `json:"min_ms"`
	MaxMs           float64         `json:"max_ms"`
	AvgMs           float64         `json:"avg_ms"`
	MedianMs        float64         `json:"median_ms"`
	P95Ms           float64         `json:"p95_ms"`
	P99Ms           float64         `json:"p99_ms"`
	PayloadAvgBytes int             `json:"payload_avg_bytes"`
}

// AgentAverage identifies one agent's mean latency within a fleet aggregate.
type AgentAverage struct {
	AgentID AgentID `json:"droneId"`
	AvgMs   float64 `json:"avg_ms"`
}

// FleetReport aggregates one category across all agents in a fleet run.
type FleetReport struct {
	Category     LatencyCategory `json:"measurement_type"`
	AgentCount   int             `json:"agent_count"`
	TotalSamples int             `json:"total_samples"`
	MeanMs       float64         `json:"mean_ms"`
	MedianMs     float64         `json:"median_ms"`
	P95Ms        float64         `json:"p95_ms"`
	P99Ms        float64         `json:"p99_ms"`
	BestAgent    AgentAverage    `json:"best_agent"`
	WorstAgent   AgentAverage    `json:"worst_agent"`
}
