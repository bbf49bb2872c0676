package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyfleet/internal/core/domain"
	"skyfleet/pkg/logger"
)

type fakeStatusSource struct {
	statuses []domain.AgentStatus
	stats    map[domain.LatencyCategory]domain.FleetReport
}

func (f *fakeStatusSource) AgentStatuses() []domain.AgentStatus { return f.statuses }
func (f *fakeStatusSource) FleetStats() map[domain.LatencyCategory]domain.FleetReport {
	return f.stats
}

func newTestStatusServer(source FleetStatusSource) *httptest.Server {
	s := NewStatusServer(":0", source, logger.NewNop().Sugar())
	return httptest.NewServer(s.srv.Handler)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestStatusServer(&fakeStatusSource{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestAgentsEndpoint(t *testing.T) {
	source := &fakeStatusSource{
		statuses: []domain.AgentStatus{
			{AgentID: "drone-001", Model: "FlyOS_MQ5", State: domain.StateStreaming, Connected: true},
			{AgentID: "drone-002", Model: "FlyOS_MQ7", State: domain.StateFailed, Connected: false},
		},
	}
	srv := newTestStatusServer(source)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/agents")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Total     int                  `json:"total"`
		Connected int                  `json:"connected"`
		Agents    []domain.AgentStatus `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 1, body.Connected)
	require.Len(t, body.Agents, 2)
	assert.Equal(t, domain.AgentID("drone-001"), body.Agents[0].AgentID)
}

func TestStatsEndpoint(t *testing.T) {
	source := &fakeStatusSource{
		stats: map[domain.LatencyCategory]domain.FleetReport{
			domain.CategoryTelemetry: {
				Category:     domain.CategoryTelemetry,
				AgentCount:   3,
				TotalSamples: 120,
				MeanMs:       42.5,
			},
		},
	}
	srv := newTestStatusServer(source)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]domain.FleetReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body, "telemetry")
	assert.Equal(t, 3, body["telemetry"].AgentCount)
	assert.Equal(t, 42.5, body["telemetry"].MeanMs)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestStatusServer(&fakeStatusSource{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
