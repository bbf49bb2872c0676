package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyfleet/internal/core/domain"
)

func TestFramePayload_Sizes(t *testing.T) {
	scene := NewSyntheticScene(1)

	for i := 0; i < 10; i++ {
		key := scene.FramePayload(domain.FrameKey)
		assert.GreaterOrEqual(t, len(key), 15000)
		// Sync markers add up to 3 bytes per kilobyte on top of the base size.
		assert.LessOrEqual(t, len(key), 25000+3*26)

		delta := scene.FramePayload(domain.FrameDelta)
		assert.GreaterOrEqual(t, len(delta), 3000)
		assert.LessOrEqual(t, len(delta), 8000+3*9)
	}
}

func TestFramePayload_SyncMarkers(t *testing.T) {
	scene := NewSyntheticScene(2)
	payload := scene.FramePayload(domain.FrameDelta)

	require.GreaterOrEqual(t, len(payload), 3)
	assert.Equal(t, []byte{0x00, 0x00, 0x01}, payload[:3])
}

func TestSceneFrame_PerCameraCharacteristics(t *testing.T) {
	scene := NewSyntheticScene(3)

	front := scene.SceneFrame(domain.CameraFront, 7, 1000)
	assert.Equal(t, "front", front["camera"])
	assert.Equal(t, uint32(7), front["frameNumber"])
	assert.Equal(t, 1.0/500, front["exposure"])

	bottom := scene.SceneFrame(domain.CameraBottom, 8, 2000)
	assert.Equal(t, 1.0/250, bottom["exposure"])
	// The bottom camera never reports face detections.
	assert.Equal(t, 0, bottom["facesDetected"])
}

func TestJetsonAndNetworkMetrics_Ranges(t *testing.T) {
	scene := NewSyntheticScene(4)

	for i := 0; i < 50; i++ {
		jm := scene.JetsonMetrics()
		assert.GreaterOrEqual(t, jm.CPUUsage, 20.0)
		assert.Less(t, jm.CPUUsage, 60.0)
		assert.GreaterOrEqual(t, jm.MemoryUsage, 40.0)
		assert.Less(t, jm.MemoryUsage, 80.0)
		assert.GreaterOrEqual(t, jm.Temperature, 45.0)
		assert.Less(t, jm.Temperature, 65.0)

		nm := scene.NetworkMetrics()
		assert.GreaterOrEqual(t, nm.Latency, 10.0)
		assert.Less(t, nm.Latency, 100.0)
		assert.GreaterOrEqual(t, nm.PacketLoss, 0.0)
		assert.Less(t, nm.PacketLoss, 0.5)
	}
}

func TestLogLine_KnownShapes(t *testing.T) {
	scene := NewSyntheticScene(5)

	for i := 0; i < 100; i++ {
		line := scene.LogLine()
		ok := line == "[ERROR] Communication timeout detected"
		for _, known := range flightLogLines {
			if line == known {
				ok = true
			}
		}
		assert.True(t, ok, "unexpected log line %q", line)
		assert.True(t, strings.HasPrefix(line, "["))
	}
}

func TestAnimate_OrbitsHomePoint(t *testing.T) {
	scene := NewSyntheticScene(6)
	st := domain.NewAgentState(domain.AgentConfig{BaseLat: 18.5204, BaseLng: 73.8567})

	for ft := 0.1; ft < 10; ft += 0.1 {
		scene.Animate(&st, 18.5204, 73.8567, ft)

		assert.InDelta(t, 18.5204, st.Latitude, 0.0011)
		assert.InDelta(t, 73.8567, st.Longitude, 0.0011)
		assert.InDelta(t, 100, st.AltitudeRelative, 10.01)
		assert.Equal(t, st.AltitudeRelative+500, st.AltitudeMSL)
	}

	// Battery drains but never below the floor.
	assert.Less(t, st.Percentage, 85.0)
	assert.GreaterOrEqual(t, st.Percentage, 20.0)
	assert.InDelta(t, 22.2*st.Percentage/100, st.Voltage, 1e-9)
}
