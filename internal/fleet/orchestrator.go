package fleet

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"skyfleet/internal/agent"
	"skyfleet/internal/core/domain"
	"skyfleet/internal/core/ports"
	"skyfleet/internal/core/services"
	"skyfleet/internal/infrastructure/transport"
	"skyfleet/pkg/config"
)

// region is a fleet home location. Agents spread round-robin across
// regions with positional jitter.
type region struct {
	name string
	lat  float64
	lng  float64
}

var regions = []region{
	{"pune", 18.5204, 73.8567},
	{"mumbai", 19.0760, 72.8777},
	{"delhi", 28.7041, 77.1025},
	{"bangalore", 12.9716, 77.5946},
	{"kolkata", 22.5726, 88.3639},
}

var models = []string{"FlyOS_MQ5", "FlyOS_MQ7", "FlyOS_MQ9"}

var defaultCapabilities = []string{
	"telemetry", "camera", "mavros", "precision_landing",
	"webrtc", "commands", "mission_planning",
}

// AgentRunner is the orchestrator's view of one agent. *agent.Agent
// implements it; tests substitute fakes.
type AgentRunner interface {
	Run(ctx context.Context) error
	Shutdown()
	Status() domain.AgentStatus
	Recorder() *services.LatencyRecorder
}

// Orchestrator owns a fleet of agents: builds them, starts them in
// batches, watches their health and aggregates their results.
type Orchestrator struct {
	cfg     *config.Config
	logger  *zap.SugaredLogger
	metrics ports.MetricsSink

	runners map[domain.AgentID]AgentRunner
	order   []domain.AgentID

	wg sync.WaitGroup

	shutdownOnce sync.Once
}

// New builds an orchestrator and its full fleet of real agents.
func New(cfg *config.Config, logger *zap.SugaredLogger, metrics ports.MetricsSink) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		runners: make(map[domain.AgentID]AgentRunner),
	}

	for _, agentCfg := range BuildAgents(cfg) {
		a := agent.New(agent.Options{
			Config:              agentCfg,
			RegistrationTimeout: cfg.Session.RegistrationTimeout,
			ReconnectAttempts:   cfg.Session.ReconnectAttempts,
			ReconnectDelay:      cfg.Session.ReconnectDelay,
			Registration:        transport.NewClient(cfg.Server.URL, cfg.Server.RequestTimeout, logger),
			Dialer:              transport.NewWSDialer(cfg.Server.URL, agentCfg.AgentID, cfg.Server.DialTimeout, logger),
			Scene:               services.NewSyntheticScene(time.Now().UnixNano() + int64(len(o.order))),
			Metrics:             metrics,
			Logger:              logger,
		})
		o.runners[agentCfg.AgentID] = a
		o.order = append(o.order, agentCfg.AgentID)
	}
	return o
}

// BuildAgents derives the per-agent configs for a fleet: round-robin
// regions with jitter, randomized models and slightly spread stream
// rates so agents don't send in lockstep.
func BuildAgents(cfg *config.Config) []domain.AgentConfig {
	out := make([]domain.AgentConfig, 0, cfg.Fleet.Agents)
	for i := 0; i < cfg.Fleet.Agents; i++ {
		reg := regions[i%len(regions)]
		serial := strings.ToUpper(uuid.NewString()[:8])

		out = append(out, domain.AgentConfig{
			AgentID:      domain.AgentID(fmt.Sprintf("drone-%s-%03d", reg.name, i+1)),
			Model:        models[rand.Intn(len(models))],
			Version:      "2.0",
			JetsonSerial: fmt.Sprintf("JETSON-%s", serial),
			BaseLat:      reg.lat + (rand.Float64()-0.5)*0.02,
			BaseLng:      reg.lng + (rand.Float64()-0.5)*0.02,
			Capabilities: append([]string{}, defaultCapabilities...),

			TelemetryRate: jitterRate(cfg.Streams.TelemetryRate),
			HeartbeatRate: jitterRate(cfg.Streams.HeartbeatRate),
			LogRate:       jitterRate(cfg.Streams.LogRate),
			CameraFPS:     cfg.Streams.CameraFPS,

			EnableCameraStreaming:    cfg.Features.CameraStreaming,
			EnableBinaryFrames:       cfg.Features.BinaryFrames,
			EnableCompression:        cfg.Features.Compression,
			EnableLatencyMeasurement: cfg.Features.LatencyMeasurement,
			FrameSkipThreshold:       cfg.Features.FrameSkipThreshold,
		})
	}
	return out
}

// jitterRate spreads a rate by ±20%.
func jitterRate(hz float64) float64 {
	return hz * (0.8 + rand.Float64()*0.4)
}

// BatchPlan splits total agents into start batches of at most size.
func BatchPlan(total, size int) []int {
	if total <= 0 {
		return nil
	}
	if size <= 0 {
		size = total
	}

	var plan []int
	for total > 0 {
		n := size
		if total < size {
			n = total
		}
		plan = append(plan, n)
		total -= n
	}
	return plan
}

// Start launches the fleet in batches, pacing individual starts with the
// configured rate limiter. Blocks until every agent has been launched or
// the context is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	var limiter *rate.Limiter
	if o.cfg.Fleet.StartRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.cfg.Fleet.StartRate), 1)
	}

	plan := BatchPlan(len(o.order), o.cfg.Fleet.BatchSize)
	o.logger.Infow("starting fleet",
		"agents", len(o.order), "batches", len(plan), "batch_size", o.cfg.Fleet.BatchSize)

	next := 0
	for i, batchSize := range plan {
		o.logger.Infow("starting batch", "batch", i+1, "size", batchSize)

		for j := 0; j < batchSize; j++ {
			id := o.order[next]
			next++

			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			}
			o.launch(ctx, id)
		}

		if i < len(plan)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.cfg.Fleet.BatchDelay):
			}
		}
	}

	o.logger.Infow("fleet started", "agents", next)
	return nil
}

func (o *Orchestrator) launch(ctx context.Context, id domain.AgentID) {
	runner := o.runners[id]
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := runner.Run(ctx); err != nil {
			o.logger.Warnw("agent ended with error", "drone_id", id, "error", err)
		}
	}()
}

// Monitor logs fleet health at the configured interval until the context
// ends. Runs in its own goroutine.
func (o *Orchestrator) Monitor(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Fleet.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statuses := o.AgentStatuses()
			connected := 0
			for _, st := range statuses {
				if st.Connected {
					connected++
				}
			}
			if o.metrics != nil {
				o.metrics.SetStreamsActive(connected)
			}
			o.logger.Infow("fleet status", "connected", connected, "total", len(statuses))
		}
	}
}

// Shutdown stops every agent concurrently and waits for their Run loops
// to return. Individual failures don't block the rest of the fleet.
func (o *Orchestrator) Shutdown() {
	o.shutdownOnce.Do(func() {
		o.logger.Infow("shutting down fleet", "agents", len(o.order))

		var wg sync.WaitGroup
		for _, runner := range o.runners {
			wg.Add(1)
			go func(r AgentRunner) {
				defer wg.Done()
				r.Shutdown()
			}(runner)
		}
		wg.Wait()
		o.wg.Wait()
		o.logger.Infow("fleet stopped")
	})
}

// AgentStatuses reports every agent in launch order.
func (o *Orchestrator) AgentStatuses() []domain.AgentStatus {
	out := make([]domain.AgentStatus, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.runners[id].Status())
	}
	return out
}

// FleetStats aggregates latency across the fleet for every category with
// at least one sample.
func (o *Orchestrator) FleetStats() map[domain.LatencyCategory]domain.FleetReport {
	recorders := make(map[domain.AgentID]*services.LatencyRecorder, len(o.runners))
	for id, runner := range o.runners {
		recorders[id] = runner.Recorder()
	}

	categories := []domain.LatencyCategory{
		domain.CategoryDiscovery,
		domain.CategoryRegistration,
		domain.CategoryTelemetry,
		domain.CategoryHeartbeat,
		domain.CategoryCamera,
		domain.CategoryCommand,
		domain.CategoryWebRTC,
	}

	out := make(map[domain.LatencyCategory]domain.FleetReport)
	for _, cat := range categories {
		report := services.FleetAggregate(cat, recorders)
		if report.TotalSamples > 0 {
			out[cat] = report
		}
	}
	return out
}

// AllSamples collects every latency sample in the fleet, keyed by agent.
func (o *Orchestrator) AllSamples() map[domain.AgentID]map[domain.LatencyCategory][]domain.LatencyMeasurement {
	out := make(map[domain.AgentID]map[domain.LatencyCategory][]domain.LatencyMeasurement, len(o.runners))
	ids := make([]string, 0, len(o.runners))
	for id := range o.runners {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		out[domain.AgentID(id)] = o.runners[domain.AgentID(id)].Recorder().AllSamples()
	}
	return out
}
