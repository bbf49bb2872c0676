package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"skyfleet/internal/core/ports"
)

type PrometheusCollector struct {
	agentsConnected prometheus.Gauge
	streamsActive   prometheus.Gauge

	framesSent     *prometheus.CounterVec
	frameBytesSent *prometheus.CounterVec
	commandsTotal  *prometheus.CounterVec
	reconnectsTotal prometheus.Counter

	roundTripLatency *prometheus.HistogramVec
}

var _ ports.MetricsSink = (*PrometheusCollector)(nil)

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		agentsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skyfleet_agents_connected",
			Help: "Number of agents with a live session",
		}),

		streamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skyfleet_streams_active",
			Help: "Number of agents currently streaming",
		}),

		framesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skyfleet_camera_frames_sent_total",
			Help: "Camera frames sent, by camera",
		}, []string{"camera"}),

		frameBytesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skyfleet_camera_frame_bytes_total",
			Help: "Camera frame bytes sent on the wire, by camera",
		}, []string{"camera"}),

		commandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skyfleet_commands_total",
			Help: "Commands handled, by command type",
		}, []string{"command"}),

		reconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skyfleet_reconnects_total",
			Help: "Channel reconnect attempts across the fleet",
		}),

		roundTripLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skyfleet_round_trip_latency_seconds",
			Help:    "Acknowledged round-trip latency, by measurement category",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}, []string{"category"}),
	}
}

func (p *PrometheusCollector) AgentConnected() {
	p.agentsConnected.Inc()
}

func (p *PrometheusCollector) AgentDisconnected() {
	p.agentsConnected.Dec()
}

func (p *PrometheusCollector) SetStreamsActive(n int) {
	p.streamsActive.Set(float64(n))
}

func (p *PrometheusCollector) RecordFrame(camera string, bytes int) {
	p.framesSent.WithLabelValues(camera).Inc()
	p.frameBytesSent.WithLabelValues(camera).Add(float64(bytes))
}

func (p *PrometheusCollector) RecordCommand(commandType string) {
	p.commandsTotal.WithLabelValues(commandType).Inc()
}

func (p *PrometheusCollector) RecordReconnect() {
	p.reconnectsTotal.Inc()
}

func (p *PrometheusCollector) ObserveLatency(category string, seconds float64) {
	p.roundTripLatency.WithLabelValues(category).Observe(seconds)
}
