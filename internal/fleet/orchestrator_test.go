package fleet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyfleet/internal/core/domain"
	"skyfleet/internal/core/services"
	"skyfleet/pkg/config"
	"skyfleet/pkg/logger"
)

type fakeRunner struct {
	id       domain.AgentID
	recorder *services.LatencyRecorder

	startedAt time.Time
	running   atomic.Bool
	shutdowns atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newFakeRunner(id domain.AgentID) *fakeRunner {
	return &fakeRunner{
		id:       id,
		recorder: services.NewLatencyRecorder(),
		stopCh:   make(chan struct{}),
	}
}

func (f *fakeRunner) Run(ctx context.Context) error {
	f.startedAt = time.Now()
	f.running.Store(true)
	defer f.running.Store(false)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopCh:
		return nil
	}
}

func (f *fakeRunner) Shutdown() {
	f.shutdowns.Add(1)
	f.stopOnce.Do(func() { close(f.stopCh) })
}

func (f *fakeRunner) Status() domain.AgentStatus {
	return domain.AgentStatus{
		AgentID:   f.id,
		State:     domain.StateStreaming,
		Connected: f.running.Load(),
	}
}

func (f *fakeRunner) Recorder() *services.LatencyRecorder { return f.recorder }

func testOrchestrator(t *testing.T, agents, batchSize int, batchDelay time.Duration) (*Orchestrator, []*fakeRunner) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Fleet.Agents = agents
	cfg.Fleet.BatchSize = batchSize
	cfg.Fleet.BatchDelay = batchDelay

	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger.NewNop().Sugar(),
		runners: make(map[domain.AgentID]AgentRunner),
	}

	fakes := make([]*fakeRunner, 0, agents)
	for _, agentCfg := range BuildAgents(cfg) {
		f := newFakeRunner(agentCfg.AgentID)
		o.runners[agentCfg.AgentID] = f
		o.order = append(o.order, agentCfg.AgentID)
		fakes = append(fakes, f)
	}
	return o, fakes
}

func TestBatchPlan(t *testing.T) {
	assert.Equal(t, []int{3, 3, 1}, BatchPlan(7, 3))
	assert.Equal(t, []int{3, 3}, BatchPlan(6, 3))
	assert.Equal(t, []int{2}, BatchPlan(2, 3))
	assert.Equal(t, []int{5}, BatchPlan(5, 0))
	assert.Nil(t, BatchPlan(0, 3))
}

func TestBuildAgentsSpreadsFleet(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fleet.Agents = 12
	cfg.Streams.TelemetryRate = 10

	configs := BuildAgents(cfg)
	require.Len(t, configs, 12)

	seen := map[domain.AgentID]bool{}
	for _, c := range configs {
		assert.False(t, seen[c.AgentID], "duplicate agent id %s", c.AgentID)
		seen[c.AgentID] = true

		assert.NotEmpty(t, c.Model)
		assert.Regexp(t, `^JETSON-[0-9A-F]{8}$`, c.JetsonSerial)
		assert.Contains(t, c.Capabilities, "precision_landing")

		assert.InDelta(t, 10, c.TelemetryRate, 2.01)
		assert.Greater(t, c.BaseLat, 0.0)
	}

	// 12 agents over 5 regions wraps round-robin, so 0 and 5 share a region.
	assert.InDelta(t, configs[0].BaseLat, configs[5].BaseLat, 0.03)
}

func TestStartLaunchesInBatches(t *testing.T) {
	o, fakes := testOrchestrator(t, 7, 3, 150*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := time.Now()
	require.NoError(t, o.Start(ctx))

	// 3 batches means 2 inter-batch delays.
	assert.GreaterOrEqual(t, time.Since(started), 300*time.Millisecond)

	// every runner ends up running
	deadline := time.After(time.Second)
	for _, f := range fakes {
		for !f.running.Load() {
			select {
			case <-deadline:
				t.Fatalf("runner %s never started", f.id)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	// first batch started well before the last one
	first, last := fakes[0].startedAt, fakes[6].startedAt
	assert.GreaterOrEqual(t, last.Sub(first), 250*time.Millisecond)

	o.Shutdown()
}

func TestStartHonorsContextCancel(t *testing.T) {
	o, _ := testOrchestrator(t, 6, 3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := o.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
	o.Shutdown()
}

func TestShutdownStopsEveryRunnerOnce(t *testing.T) {
	o, fakes := testOrchestrator(t, 5, 5, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.Start(ctx))

	o.Shutdown()
	o.Shutdown() // idempotent

	for _, f := range fakes {
		assert.False(t, f.running.Load())
		assert.Equal(t, int32(1), f.shutdowns.Load())
	}
}

func TestFleetStatsAggregatesRecorders(t *testing.T) {
	o, fakes := testOrchestrator(t, 2, 2, 0)

	now := domain.TimestampMillis(time.Now())
	fakes[0].recorder.Record(domain.CategoryTelemetry, now, now+25, 128, 0)
	fakes[0].recorder.Record(domain.CategoryTelemetry, now, now+35, 128, 1)
	fakes[1].recorder.Record(domain.CategoryTelemetry, now, now+15, 128, 0)

	stats := o.FleetStats()
	require.Contains(t, stats, domain.CategoryTelemetry)
	assert.NotContains(t, stats, domain.CategoryCamera)

	report := stats[domain.CategoryTelemetry]
	assert.Equal(t, 3, report.TotalSamples)
	assert.Equal(t, 2, report.AgentCount)
	assert.Equal(t, 25.0, report.MeanMs)
	assert.Equal(t, fakes[1].id, report.BestAgent.AgentID)
	assert.Equal(t, fakes[0].id, report.WorstAgent.AgentID)
}

func TestAllSamplesKeyedByAgent(t *testing.T) {
	o, fakes := testOrchestrator(t, 2, 2, 0)

	now := domain.TimestampMillis(time.Now())
	fakes[0].recorder.Record(domain.CategoryCommand, now, now+5, 64, 0)

	samples := o.AllSamples()
	require.Len(t, samples, 2)
	assert.Len(t, samples[fakes[0].id][domain.CategoryCommand], 1)
	assert.Empty(t, samples[fakes[1].id][domain.CategoryCommand])
}

func TestAgentStatusesPreservesLaunchOrder(t *testing.T) {
	o, _ := testOrchestrator(t, 4, 4, 0)

	statuses := o.AgentStatuses()
	require.Len(t, statuses, 4)
	for i, st := range statuses {
		assert.Equal(t, o.order[i], st.AgentID)
	}
}
