package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyfleet/internal/core/domain"
)

func recordLatencies(r *LatencyRecorder, category domain.LatencyCategory, latencies ...float64) {
	for _, ms := range latencies {
		seq := r.NextSequence(category)
		r.Record(category, 1000, 1000+ms, 256, seq)
	}
}

func TestStats_PercentileInterpolation(t *testing.T) {
	r := NewLatencyRecorder()
	recordLatencies(r, domain.CategoryTelemetry, 10, 20, 30, 40, 1000)

	stats := r.Stats(domain.CategoryTelemetry)

	assert.Equal(t, 5, stats.Count)
	assert.Equal(t, 10.0, stats.MinMs)
	assert.Equal(t, 1000.0, stats.MaxMs)
	assert.Equal(t, 220.0, stats.AvgMs)
	assert.Equal(t, 30.0, stats.MedianMs)
	assert.InDelta(t, 808.0, stats.P95Ms, 1e-9)
	assert.InDelta(t, 961.6, stats.P99Ms, 1e-9)
	assert.Equal(t, 256, stats.PayloadAvgBytes)
}

func TestStats_SingleSample(t *testing.T) {
	r := NewLatencyRecorder()
	recordLatencies(r, domain.CategoryHeartbeat, 42)

	stats := r.Stats(domain.CategoryHeartbeat)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 42.0, stats.MedianMs)
	assert.Equal(t, 42.0, stats.P95Ms)
	assert.Equal(t, 42.0, stats.P99Ms)
}

func TestStats_EmptyCategory(t *testing.T) {
	r := NewLatencyRecorder()

	stats := r.Stats(domain.CategoryCamera)
	assert.Equal(t, domain.CategoryCamera, stats.Category)
	assert.Equal(t, 0, stats.Count)
	assert.Equal(t, 0.0, stats.MedianMs)
	assert.Equal(t, 0.0, stats.P95Ms)
}

func TestNextSequence_MonotonicPerCategory(t *testing.T) {
	r := NewLatencyRecorder()

	assert.Equal(t, int64(1), r.NextSequence(domain.CategoryTelemetry))
	assert.Equal(t, int64(2), r.NextSequence(domain.CategoryTelemetry))
	// Categories keep independent counters.
	assert.Equal(t, int64(1), r.NextSequence(domain.CategoryCamera))
}

func TestSamples_ReturnsCopy(t *testing.T) {
	r := NewLatencyRecorder()
	recordLatencies(r, domain.CategoryCommand, 5)

	samples := r.Samples(domain.CategoryCommand)
	require.Len(t, samples, 1)
	samples[0].LatencyMs = 999

	assert.Equal(t, 5.0, r.Samples(domain.CategoryCommand)[0].LatencyMs)
}

func TestFleetAggregate(t *testing.T) {
	fast := NewLatencyRecorder()
	recordLatencies(fast, domain.CategoryTelemetry, 10, 20)

	slow := NewLatencyRecorder()
	recordLatencies(slow, domain.CategoryTelemetry, 100, 200)

	idle := NewLatencyRecorder() // no samples, excluded from the report

	report := FleetAggregate(domain.CategoryTelemetry, map[domain.AgentID]*LatencyRecorder{
		"drone-fast": fast,
		"drone-slow": slow,
		"drone-idle": idle,
	})

	assert.Equal(t, 2, report.AgentCount)
	assert.Equal(t, 4, report.TotalSamples)
	assert.Equal(t, 82.5, report.MeanMs)
	assert.Equal(t, domain.AgentID("drone-fast"), report.BestAgent.AgentID)
	assert.Equal(t, 15.0, report.BestAgent.AvgMs)
	assert.Equal(t, domain.AgentID("drone-slow"), report.WorstAgent.AgentID)
	assert.Equal(t, 150.0, report.WorstAgent.AvgMs)
}

func TestFleetAggregate_Empty(t *testing.T) {
	report := FleetAggregate(domain.CategoryCamera, map[domain.AgentID]*LatencyRecorder{})
	assert.Equal(t, 0, report.AgentCount)
	assert.Equal(t, 0, report.TotalSamples)
	assert.Equal(t, 0.0, report.MeanMs)
}
