package domain

import "time"

// Camera identifies one of the agent's video sources.
type Camera string

const (
	CameraFront  Camera = "front"
	CameraBottom Camera = "bottom"
)

// Cameras lists every camera an agent streams from. Each is paced
// independently.
func Cameras() []Camera {
	return []Camera{CameraFront, CameraBottom}
}

// WireID returns the 16-bit camera identifier used in binary frame headers.
func (c Camera) WireID() uint16 {
	if c == CameraFront {
		return 1
	}
	return 2
}

// FrameType classifies a synthetic video frame.
type FrameType string

const (
	FrameKey   FrameType = "key"
	FrameDelta FrameType = "delta"
)

// ClassifyFrame maps a running frame counter to a frame type: every 30th
// frame is a key frame.
func ClassifyFrame(counter uint32) FrameType {
	if counter%30 == 0 {
		return FrameKey
	}
	return FrameDelta
}

// CameraMetrics are per-camera counters. Counters are monotonically
// non-decreasing within a session and reset only on reconnect.
type CameraMetrics struct {
	FramesSent       int64
	FramesSkipped    int64
	BytesSent        int64
	BytesCompressed  int64
	CompressionRatio float64
	AvgEncodeTimeMs  float64
	LastAckTime      time.Time
	QueueDepth       int
}

// CameraMetricsSummary is the wire shape of per-camera metrics embedded in
// telemetry payloads.
type CameraMetricsSummary struct {
	FramesSent       int64   `json:"framesSent"`
	FramesSkipped    int64   `json:"framesSkipped"`
	CompressionRatio float64 `json:"compressionRatio"`
	AvgEncodeTimeMs  float64 `json:"avgGenerationTime"`
	BytesSent        int64   `json:"bytesSent"`
	QueueDepth       int     `json:"queueDepth"`
}

// Summary flattens the metrics for telemetry reporting.
func (m *CameraMetrics) Summary() CameraMetricsSummary {
	return CameraMetricsSummary{
		FramesSent:       m.FramesSent,
		FramesSkipped:    m.FramesSkipped,
		CompressionRatio: m.CompressionRatio,
		AvgEncodeTimeMs:  m.AvgEncodeTimeMs,
		BytesSent:        m.BytesSent,
		QueueDepth:       m.QueueDepth,
	}
}
