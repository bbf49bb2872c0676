package services

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"skyfleet/internal/core/domain"
	"skyfleet/internal/core/ports"
)

var flightLogLines = []string{
	"[INFO] MAVLink connection established",
	"[INFO] GPS position received",
	"[INFO] Battery status updated",
	"[WARN] Wind speed above normal",
	"[INFO] Mission waypoint reached",
	"[INFO] Altitude hold engaged",
	"[WARN] Signal strength low",
	"[INFO] Gimbal position updated",
}

// SyntheticScene generates the filler content of a simulated vehicle:
// codec-like frame payloads, companion-computer metrics, flight-controller
// log lines and a circular flight path. One instance per agent, safe for
// use from the agent's stream goroutines.
type SyntheticScene struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSyntheticScene(seed int64) *SyntheticScene {
	return &SyntheticScene{rng: rand.New(rand.NewSource(seed))}
}

var _ ports.SceneGenerator = (*SyntheticScene)(nil)

// FramePayload builds a codec-like byte stream. Key frames carry dense
// coefficient blocks at 15000-25000 bytes; delta frames carry motion
// vectors at 3000-8000 bytes. Sync markers recur every 1000 bytes.
func (s *SyntheticScene) FramePayload(frameType domain.FrameType) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var size int
	var pattern []byte
	if frameType == domain.FrameKey {
		size = 15000 + s.rng.Intn(10001)
		pattern = s.keyFramePattern()
	} else {
		size = 3000 + s.rng.Intn(5001)
		pattern = s.deltaFramePattern()
	}

	payload := make([]byte, 0, size+3*(size/1000+1))
	for i := 0; i < size; i++ {
		switch {
		case i%1000 == 0:
			payload = append(payload, 0x00, 0x00, 0x01)
		case i%100 == 0:
			payload = append(payload, byte(0x80+s.rng.Intn(0x80)))
		default:
			base := int(pattern[i%len(pattern)])
			noise := s.rng.Intn(21) - 10
			b := base + noise
			if b < 0 {
				b = 0
			} else if b > 255 {
				b = 255
			}
			payload = append(payload, byte(b))
		}
	}
	return payload
}

// keyFramePattern simulates a quantization table followed by DCT
// coefficient blocks.
func (s *SyntheticScene) keyFramePattern() []byte {
	pattern := make([]byte, 0, 64+50*64)
	for i := 0; i < 64; i++ {
		pattern = append(pattern, byte(16+(i%32)))
	}
	for block := 0; block < 50; block++ {
		for coeff := 0; coeff < 64; coeff++ {
			if coeff == 0 {
				pattern = append(pattern, byte(128+s.rng.Intn(41)-20))
			} else if s.rng.Float64() < 0.3 {
				pattern = append(pattern, byte(1+s.rng.Intn(50)))
			} else {
				pattern = append(pattern, 0)
			}
		}
	}
	return pattern
}

// deltaFramePattern simulates motion vectors plus sparse residual data.
func (s *SyntheticScene) deltaFramePattern() []byte {
	pattern := make([]byte, 0, 200+200)
	for mv := 0; mv < 100; mv++ {
		pattern = append(pattern,
			byte(128+s.rng.Intn(61)-30),
			byte(128+s.rng.Intn(61)-30))
	}
	for i := 0; i < 200; i++ {
		if s.rng.Float64() < 0.4 {
			pattern = append(pattern, byte(1+s.rng.Intn(30)))
		} else {
			pattern = append(pattern, 0)
		}
	}
	return pattern
}

// SceneFrame builds the structured record used by the JSON fallback camera
// transport: camera parameters, scene characteristics and gimbal motion.
func (s *SyntheticScene) SceneFrame(camera domain.Camera, frameNumber uint32, timestampMs float64) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	exposure := 1.0 / 500
	brightness := 180 + s.rng.Float64()*40
	faces := 0
	if camera == domain.CameraBottom {
		exposure = 1.0 / 250
		brightness = 120 + s.rng.Float64()*60
	} else {
		faces = s.rng.Intn(2)
	}

	return map[string]interface{}{
		"camera":      string(camera),
		"frameNumber": frameNumber,
		"timestamp":   timestampMs,

		"exposure":      exposure,
		"iso":           100 + s.rng.Float64()*200,
		"focusDistance": 5 + s.rng.Float64()*95,
		"whiteBalance":  5600 + s.rng.Float64()*400,

		"sceneBrightness": brightness,
		"contrast":        1.0 + (s.rng.Float64()-0.5)*0.2,
		"saturation":      1.0 + (s.rng.Float64()-0.5)*0.1,

		"gimbalRoll":  math.Sin(timestampMs/5000) * 2,
		"gimbalPitch": math.Cos(timestampMs/7000) * 3,
		"gimbalYaw":   math.Sin(timestampMs/10000) * 5,

		"objectsDetected": s.rng.Intn(3),
		"facesDetected":   faces,
	}
}

func (s *SyntheticScene) JetsonMetrics() domain.JetsonMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.JetsonMetrics{
		CPUUsage:    20 + s.rng.Float64()*40,
		MemoryUsage: 40 + s.rng.Float64()*40,
		Temperature: 45 + s.rng.Float64()*20,
		DiskUsage:   30 + s.rng.Float64()*40,
	}
}

func (s *SyntheticScene) NetworkMetrics() domain.NetworkMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.NetworkMetrics{
		Latency:    10 + s.rng.Float64()*90,
		PacketLoss: s.rng.Float64() * 0.5,
		Bandwidth:  50 + s.rng.Float64()*50,
	}
}

// LogLine returns one synthetic flight-controller log line; roughly 5% are
// injected communication errors.
func (s *SyntheticScene) LogLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Float64() < 0.05 {
		return "[ERROR] Communication timeout detected"
	}
	return flightLogLines[s.rng.Intn(len(flightLogLines))]
}

// RawLogLine formats a log line the way the flight controller console
// prints it, with a wall-clock prefix.
func RawLogLine(line string, now time.Time) string {
	return fmt.Sprintf("[%s] %s", now.Format("15:04:05"), line)
}

// Animate advances the vehicle state along a slow circular orbit around
// the home point, with gentle altitude and attitude oscillation and a
// slowly draining battery.
func (s *SyntheticScene) Animate(st *domain.AgentState, baseLat, baseLng, flightTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const radiusDeg = 0.001
	const angularSpeed = 0.1

	angle := flightTime * angularSpeed
	st.Latitude = baseLat + math.Sin(angle)*radiusDeg
	st.Longitude = baseLng + math.Cos(angle)*radiusDeg

	st.AltitudeRelative = 100 + math.Sin(flightTime*0.5)*10
	st.AltitudeMSL = st.AltitudeRelative + 500

	st.Yaw = angle
	st.Roll = math.Sin(flightTime) * 0.1
	st.Pitch = math.Cos(flightTime*0.7) * 0.1

	const speed = 5.0
	st.VelocityX = speed * math.Cos(angle)
	st.VelocityY = speed * math.Sin(angle)
	st.VelocityZ = math.Sin(flightTime*0.3) * 0.5

	if st.Percentage > 20 {
		st.Percentage -= 0.001
	}
	st.Voltage = 22.2 * (st.Percentage / 100)

	st.HDOP = 0.8 + (s.rng.Float64()-0.5)*0.4
	st.PositionError = 1.0 + (s.rng.Float64()-0.5)*0.6
}
