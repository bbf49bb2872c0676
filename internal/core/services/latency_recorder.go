package services

import (
	"math"
	"sort"
	"sync"

	"skyfleet/internal/core/domain"
)

// LatencyRecorder collects round-trip samples for one agent, grouped by
// category. Safe for concurrent use: stream goroutines record while the
// orchestrator reads stats.
type LatencyRecorder struct {
	mu      sync.RWMutex
	samples map[domain.LatencyCategory][]domain.LatencyMeasurement
	nextSeq map[domain.LatencyCategory]int64
}

func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{
		samples: make(map[domain.LatencyCategory][]domain.LatencyMeasurement),
		nextSeq: make(map[domain.LatencyCategory]int64),
	}
}

// NextSequence returns the next monotonically increasing sequence id for
// a category.
func (r *LatencyRecorder) NextSequence(category domain.LatencyCategory) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq[category]++
	return r.nextSeq[category]
}

// Record appends one sample. Send and receive timestamps are epoch
// milliseconds.
func (r *LatencyRecorder) Record(category domain.LatencyCategory, sendTS, receiveTS float64, payloadBytes int, seq int64) {
	m := domain.LatencyMeasurement{
		Category:     category,
		SendTS:       sendTS,
		ReceiveTS:    receiveTS,
		LatencyMs:    receiveTS - sendTS,
		PayloadBytes: payloadBytes,
		SequenceID:   seq,
	}

	r.mu.Lock()
	r.samples[category] = append(r.samples[category], m)
	r.mu.Unlock()
}

// Samples returns a copy of the sample set for a category.
func (r *LatencyRecorder) Samples(category domain.LatencyCategory) []domain.LatencyMeasurement {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.samples[category]
	out := make([]domain.LatencyMeasurement, len(src))
	copy(out, src)
	return out
}

// AllSamples returns a copy of every recorded sample, grouped by category.
func (r *LatencyRecorder) AllSamples() map[domain.LatencyCategory][]domain.LatencyMeasurement {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[domain.LatencyCategory][]domain.LatencyMeasurement, len(r.samples))
	for cat, src := range r.samples {
		cp := make([]domain.LatencyMeasurement, len(src))
		copy(cp, src)
		out[cat] = cp
	}
	return out
}

// Count returns the number of samples recorded for a category.
func (r *LatencyRecorder) Count(category domain.LatencyCategory) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples[category])
}

// Stats derives summary statistics for a category. An empty sample set
// yields a zeroed result with only the category filled in.
func (r *LatencyRecorder) Stats(category domain.LatencyCategory) domain.LatencyStats {
	r.mu.RLock()
	src := r.samples[category]
	latencies := make([]float64, len(src))
	var payloadSum int
	for i, m := range src {
		latencies[i] = m.LatencyMs
		payloadSum += m.PayloadBytes
	}
	r.mu.RUnlock()

	stats := domain.LatencyStats{Category: category, Count: len(latencies)}
	if len(latencies) == 0 {
		return stats
	}

	sort.Float64s(latencies)

	var sum float64
	for _, v := range latencies {
		sum += v
	}

	stats.MinMs = latencies[0]
	stats.MaxMs = latencies[len(latencies)-1]
	stats.AvgMs = sum / float64(len(latencies))
	stats.MedianMs = percentileSorted(latencies, 50)
	stats.P95Ms = percentileSorted(latencies, 95)
	stats.P99Ms = percentileSorted(latencies, 99)
	stats.PayloadAvgBytes = payloadSum / len(latencies)
	return stats
}

// percentileSorted computes percentile p of an ascending-sorted slice
// using linear interpolation between the two nearest order statistics.
func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := float64(len(sorted)-1) * p / 100
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// FleetAggregate merges the samples of many recorders into a fleet-wide
// report for one category. Returns a zeroed report when no agent has
// samples.
func FleetAggregate(category domain.LatencyCategory, recorders map[domain.AgentID]*LatencyRecorder) domain.FleetReport {
	report := domain.FleetReport{Category: category}

	var all []float64
	var sum float64
	for agentID, rec := range recorders {
		samples := rec.Samples(category)
		if len(samples) == 0 {
			continue
		}

		var agentSum float64
		for _, m := range samples {
			all = append(all, m.LatencyMs)
			agentSum += m.LatencyMs
		}
		sum += agentSum

		avg := agentSum / float64(len(samples))
		report.AgentCount++
		if report.AgentCount == 1 || avg < report.BestAgent.AvgMs {
			report.BestAgent = domain.AgentAverage{AgentID: agentID, AvgMs: avg}
		}
		if report.AgentCount == 1 || avg > report.WorstAgent.AvgMs {
			report.WorstAgent = domain.AgentAverage{AgentID: agentID, AvgMs: avg}
		}
	}

	if len(all) == 0 {
		return report
	}

	sort.Float64s(all)
	report.TotalSamples = len(all)
	report.MeanMs = sum / float64(len(all))
	report.MedianMs = percentileSorted(all, 50)
	report.P95Ms = percentileSorted(all, 95)
	report.P99Ms = percentileSorted(all, 99)
	return report
}
