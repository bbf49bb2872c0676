package agent

import (
	"encoding/json"
	"time"

	"skyfleet/internal/core/domain"
	"skyfleet/internal/core/ports"
	apperrors "skyfleet/pkg/errors"
)

// routes returns the inbound event dispatch table for one session.
func (a *Agent) routes() map[string]ports.EventHandler {
	return map[string]ports.EventHandler{
		domain.EventRegistrationSuccess: a.handleRegistrationSuccess,
		domain.EventRegistrationFailed:  a.handleRegistrationFailed,
		domain.EventCommand:             a.handleCommand,
		domain.EventTelemetryAck:        a.ackHandler(domain.CategoryTelemetry),
		domain.EventHeartbeatAck:        a.handleHeartbeatAck,
		domain.EventCameraFrameAck:      a.handleCameraFrameAck,
		domain.EventCameraStreamAck:     a.handleCameraFrameAck,
		domain.EventWebRTCRequestOffer:  a.handleWebRTCRequestOffer,
		domain.EventWebRTCAnswer:        a.handleWebRTCAnswer,
		domain.EventWebRTCICECandidate:  a.handleWebRTCICECandidate,
	}
}

func (a *Agent) handleRegistrationSuccess(payload json.RawMessage) {
	select {
	case a.regAck <- nil:
	default:
	}
}

func (a *Agent) handleRegistrationFailed(payload json.RawMessage) {
	var body struct {
		Reason string `json:"reason"`
	}
	json.Unmarshal(payload, &body)
	if body.Reason == "" {
		body.Reason = "unspecified"
	}

	err := apperrors.NewProtocolError("server rejected session registration").
		WithReason("session_registration_rejected").
		WithContext("server_reason", body.Reason)

	select {
	case a.regAck <- err:
	default:
	}
}

// ackHandler builds a handler that records round-trip latency for acks
// correlated by the echoed send timestamp. Acks without a timestamp are
// dropped rather than recorded with a guessed latency.
func (a *Agent) ackHandler(category domain.LatencyCategory) ports.EventHandler {
	return func(payload json.RawMessage) {
		var ack domain.AckPayload
		if err := json.Unmarshal(payload, &ack); err != nil {
			a.logger.Debugw("malformed ack", "category", category, "error", err)
			return
		}
		if ack.Timestamp == nil {
			return
		}
		a.recordAck(category, *ack.Timestamp)
	}
}

// handleHeartbeatAck differs from the other acks: the server echoes the
// send time in serverTimestamp.
func (a *Agent) handleHeartbeatAck(payload json.RawMessage) {
	var ack domain.AckPayload
	if err := json.Unmarshal(payload, &ack); err != nil {
		a.logger.Debugw("malformed heartbeat ack", "error", err)
		return
	}
	if ack.ServerTimestamp == nil {
		return
	}
	a.recordAck(domain.CategoryHeartbeat, *ack.ServerTimestamp)
}

// handleCameraFrameAck records latency and feeds the server's queue depth
// back into the camera's pacer, which drives adaptive frame pacing.
func (a *Agent) handleCameraFrameAck(payload json.RawMessage) {
	var ack domain.AckPayload
	if err := json.Unmarshal(payload, &ack); err != nil {
		a.logger.Debugw("malformed camera ack", "error", err)
		return
	}

	if ack.Camera != "" {
		a.mu.Lock()
		pacer := a.pacers[ack.Camera]
		metrics := a.cameraMetrics[ack.Camera]
		if metrics != nil {
			metrics.LastAckTime = time.Now()
			if ack.QueueSize != nil {
				metrics.QueueDepth = *ack.QueueSize
			}
		}
		a.mu.Unlock()

		if pacer != nil && ack.QueueSize != nil {
			pacer.SetQueueDepth(*ack.QueueSize)
		}
	}

	if ack.Timestamp == nil {
		return
	}
	a.recordAck(domain.CategoryCamera, *ack.Timestamp)
}

func (a *Agent) recordAck(category domain.LatencyCategory, sendTS float64) {
	if !a.cfg.EnableLatencyMeasurement {
		return
	}

	size, ok := a.takePending(category, sendTS)
	if !ok {
		// No tracked send with this timestamp: a duplicate or unsolicited
		// ack, which must not become a latency sample.
		return
	}
	nowMs := domain.TimestampMillis(time.Now())
	seq := a.recorder.NextSequence(category)
	a.recorder.Record(category, sendTS, nowMs, size, seq)

	if a.metrics != nil {
		a.metrics.ObserveLatency(string(category), (nowMs-sendTS)/1000)
	}
}
