package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"skyfleet/internal/core/domain"
	"skyfleet/internal/core/services"
)

// cameraWakeInterval is how often the camera loop checks its pacers. The
// loop self-throttles against the pacer instead of a fixed ticker so the
// effective rate can change mid-stream.
const cameraWakeInterval = 10 * time.Millisecond

const animateInterval = 100 * time.Millisecond

// streamHandles owns the goroutines of one streaming session.
type streamHandles struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// startStreams launches the periodic producers: telemetry, heartbeat,
// flight log lines, the state animator and (optionally) both camera
// streams.
func (a *Agent) startStreams() {
	ctx, cancel := context.WithCancel(context.Background())
	h := &streamHandles{cancel: cancel}

	a.mu.Lock()
	a.streams = h
	a.mu.Unlock()

	loops := []struct {
		name string
		fn   func(context.Context)
	}{
		{"telemetry", a.telemetryLoop},
		{"heartbeat", a.heartbeatLoop},
		{"mavros", a.mavrosLoop},
		{"animate", a.animateLoop},
	}
	if a.cfg.EnableCameraStreaming {
		loops = append(loops, struct {
			name string
			fn   func(context.Context)
		}{"camera", a.cameraLoop})
	}

	for _, loop := range loops {
		h.wg.Add(1)
		go func(fn func(context.Context)) {
			defer h.wg.Done()
			fn(ctx)
		}(loop.fn)
	}

	a.logger.Debugw("streams started", "count", len(loops))
}

// stopStreams cancels the stream goroutines and waits for them to drain.
// Safe to call when no streams are running.
func (a *Agent) stopStreams() {
	a.mu.Lock()
	h := a.streams
	a.streams = nil
	a.mu.Unlock()

	if h == nil {
		return
	}
	h.cancel()
	h.wg.Wait()
}

func rateInterval(hz float64, fallback time.Duration) time.Duration {
	if hz <= 0 {
		return fallback
	}
	return time.Duration(float64(time.Second) / hz)
}

func (a *Agent) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(rateInterval(a.cfg.TelemetryRate, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendTelemetry()
		}
	}
}

func (a *Agent) sendTelemetry() {
	now := domain.TimestampMillis(time.Now())
	seq := a.recorder.NextSequence(domain.CategoryTelemetry)

	a.mu.Lock()
	payload := a.telemetryPayloadLocked(now, seq)
	a.mu.Unlock()

	if err := a.emit(domain.EventTelemetry, payload); err != nil {
		a.logger.Debugw("telemetry send failed", "error", err)
		return
	}
	a.trackPending(domain.CategoryTelemetry, now, 0)
}

// telemetryPayloadLocked builds the telemetry_real record: the full
// vehicle state plus timing and per-camera stream metrics.
func (a *Agent) telemetryPayloadLocked(timestampMs float64, seq int64) map[string]interface{} {
	payload := map[string]interface{}{
		"droneId":    a.cfg.AgentID,
		"timestamp":  timestampMs,
		"sequenceId": seq,
		"sessionId":  string(a.token),
	}

	payload["state"] = a.vehicle

	cameras := make(map[string]domain.CameraMetricsSummary, len(a.cameraMetrics))
	for cam, m := range a.cameraMetrics {
		cameras[string(cam)] = m.Summary()
	}
	payload["cameraMetrics"] = cameras
	return payload
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(rateInterval(a.cfg.HeartbeatRate, 5*time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendHeartbeat()
		}
	}
}

func (a *Agent) sendHeartbeat() {
	now := domain.TimestampMillis(time.Now())
	seq := a.recorder.NextSequence(domain.CategoryHeartbeat)

	payload := domain.HeartbeatPayload{
		Timestamp:      now,
		SequenceID:     seq,
		JetsonMetrics:  a.scene.JetsonMetrics(),
		NetworkMetrics: a.scene.NetworkMetrics(),
	}

	if err := a.emit(domain.EventHeartbeat, payload); err != nil {
		a.logger.Debugw("heartbeat send failed", "error", err)
		return
	}
	a.trackPending(domain.CategoryHeartbeat, now, 0)
}

func (a *Agent) mavrosLoop(ctx context.Context) {
	ticker := time.NewTicker(rateInterval(a.cfg.LogRate, 2*time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendLogLine()
		}
	}
}

func (a *Agent) sendLogLine() {
	line := a.scene.LogLine()
	now := time.Now()

	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	sessionID := string(token)
	if sessionID == "" {
		sessionID = "default"
	}

	payload := domain.MavrosPayload{
		Message:    line,
		RawMessage: services.RawLogLine(line, now),
		Source:     "jetson_mavros",
		Timestamp:  domain.TimestampMillis(now),
		SessionID:  sessionID,
	}
	if err := a.emit(domain.EventMavros, payload); err != nil {
		a.logger.Debugw("log line send failed", "error", err)
	}
}

func (a *Agent) animateLoop(ctx context.Context) {
	ticker := time.NewTicker(animateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			a.flightTime += animateInterval.Seconds()
			a.scene.Animate(&a.vehicle, a.cfg.BaseLat, a.cfg.BaseLng, a.flightTime)
			a.mu.Unlock()
		}
	}
}

// cameraLoop wakes every few milliseconds and asks each camera's pacer
// whether a frame is due. Send intervals adapt to server queue feedback,
// so a ticker per camera would fight the pacing.
func (a *Agent) cameraLoop(ctx context.Context) {
	a.announceCameraStreams()

	ticker := time.NewTicker(cameraWakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, cam := range domain.Cameras() {
				a.mu.Lock()
				pacer := a.pacers[cam]
				a.mu.Unlock()
				if pacer == nil || !pacer.ShouldSend(now) {
					continue
				}
				a.sendFrame(cam, now)
				pacer.MarkSent(now)
			}
		}
	}
}

func (a *Agent) announceCameraStreams() {
	for _, cam := range domain.Cameras() {
		a.emit(domain.EventCameraStreamStart, domain.CameraStreamControl{
			DroneID: a.cfg.AgentID,
			Camera:  cam,
			Config: &domain.CameraStreamConfig{
				Resolution: "1920x1080",
				FPS:        int(a.cfg.CameraFPS),
				Quality:    "high",
				Transport:  a.frameTransport(),
			},
		})
	}
}

func (a *Agent) frameTransport() string {
	if a.cfg.EnableBinaryFrames {
		return "websocket_binary"
	}
	return "websocket_json"
}

// sendFrame encodes and emits one frame for the camera, or skips it when
// the server backlog is past the configured threshold.
func (a *Agent) sendFrame(cam domain.Camera, now time.Time) {
	a.mu.Lock()
	frameNumber := a.frameCounters[cam]
	a.frameCounters[cam]++
	a.globalSeq++
	globalSeq := a.globalSeq
	lat := a.vehicle.Latitude
	lng := a.vehicle.Longitude
	metrics := a.cameraMetrics[cam]
	pacer := a.pacers[cam]
	a.mu.Unlock()

	if a.cfg.FrameSkipThreshold > 0 && pacer.QueueDepth() > a.cfg.FrameSkipThreshold {
		a.mu.Lock()
		metrics.FramesSkipped++
		a.mu.Unlock()
		return
	}

	nowMs := domain.TimestampMillis(now)

	if a.cfg.EnableBinaryFrames {
		encodeStart := time.Now()
		payload := a.scene.FramePayload(domain.ClassifyFrame(frameNumber))
		a.sendBinaryFrame(cam, frameNumber, globalSeq, lat, lng, nowMs, payload, encodeStart)
	} else {
		a.sendJSONFrame(cam, frameNumber, nowMs)
	}
}

func (a *Agent) sendBinaryFrame(cam domain.Camera, frameNumber, globalSeq uint32, lat, lng, nowMs float64, payload []byte, encodeStart time.Time) {
	header := services.FrameHeader{
		TimestampSec: uint32(nowMs / 1000),
		Camera:       cam,
		FrameNumber:  uint16(frameNumber),
		GlobalSeq:    globalSeq,
		Latitude:     float32(lat),
		Longitude:    float32(lng),
	}

	frame, err := a.encoder.Encode(header, payload)
	if err != nil {
		a.logger.Warnw("frame encode failed", "camera", cam, "error", err)
		return
	}
	encodeMs := float64(time.Since(encodeStart)) / float64(time.Millisecond)

	meta := domain.BinaryFrameMetadata{
		DroneID:   a.cfg.AgentID,
		Camera:    cam,
		Timestamp: nowMs,
		Metadata: domain.CameraFrameMetadata{
			Resolution:       "1920x1080",
			FPS:              int(a.cfg.CameraFPS),
			Quality:          85,
			FrameNumber:      frameNumber,
			OriginalSize:     frame.OriginalSize,
			CompressedSize:   frame.CompressedSize,
			CompressionRatio: frame.CompressionRatio(),
			Transport:        "websocket_binary",
		},
	}

	if err := a.emitBinary(domain.EventCameraFrameBinary, meta, frame.Data); err != nil {
		a.logger.Debugw("binary frame send failed", "camera", cam, "error", err)
		return
	}

	a.recordFrameSent(cam, len(frame.Data), frame.OriginalSize, frame.CompressionRatio(), encodeMs)
	a.trackPending(domain.CategoryCamera, nowMs, len(frame.Data))
}

// sendJSONFrame emits the fallback transport: the structured scene record
// rides base64-encoded inside a camera_frame event.
func (a *Agent) sendJSONFrame(cam domain.Camera, frameNumber uint32, nowMs float64) {
	encodeStart := time.Now()
	scene, err := json.Marshal(a.scene.SceneFrame(cam, frameNumber, nowMs))
	if err != nil {
		a.logger.Warnw("scene frame marshal failed", "camera", cam, "error", err)
		return
	}
	encodeMs := float64(time.Since(encodeStart)) / float64(time.Millisecond)

	framePayload := domain.CameraFramePayload{
		DroneID:   a.cfg.AgentID,
		Camera:    cam,
		Timestamp: nowMs,
		Frame:     base64.StdEncoding.EncodeToString(scene),
		Metadata: domain.CameraFrameMetadata{
			Resolution:  "1920x1080",
			FPS:         int(a.cfg.CameraFPS),
			Quality:     85,
			FrameNumber: frameNumber,
			Transport:   "websocket_json",
		},
	}

	if err := a.emit(domain.EventCameraFrame, framePayload); err != nil {
		a.logger.Debugw("camera frame send failed", "camera", cam, "error", err)
		return
	}

	a.recordFrameSent(cam, len(framePayload.Frame), len(scene), 1.0, encodeMs)
	a.trackPending(domain.CategoryCamera, nowMs, len(framePayload.Frame))
}

func (a *Agent) recordFrameSent(cam domain.Camera, wireBytes, originalBytes int, ratio, encodeMs float64) {
	a.mu.Lock()
	m := a.cameraMetrics[cam]
	m.FramesSent++
	m.BytesSent += int64(originalBytes)
	m.BytesCompressed += int64(wireBytes)
	m.CompressionRatio = ratio
	// Running average over the session.
	if m.FramesSent == 1 {
		m.AvgEncodeTimeMs = encodeMs
	} else {
		m.AvgEncodeTimeMs += (encodeMs - m.AvgEncodeTimeMs) / float64(m.FramesSent)
	}
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.RecordFrame(string(cam), wireBytes)
	}
}
