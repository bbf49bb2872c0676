package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"skyfleet/internal/core/domain"
)

// FleetStatusSource is what the status server reads from the running
// fleet. Implemented by the orchestrator.
type FleetStatusSource interface {
	AgentStatuses() []domain.AgentStatus
	FleetStats() map[domain.LatencyCategory]domain.FleetReport
}

// StatusServer exposes the operational HTTP surface of a fleet run:
// health, live stats, per-agent status and Prometheus metrics.
type StatusServer struct {
	source FleetStatusSource
	srv    *http.Server
	logger *zap.SugaredLogger
}

func NewStatusServer(addr string, source FleetStatusSource, logger *zap.SugaredLogger) *StatusServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &StatusServer{
		source: source,
		logger: logger,
		srv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}

	router.GET("/health", s.handleHealth)
	router.GET("/stats", s.handleStats)
	router.GET("/agents", s.handleAgents)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *StatusServer) Start() error {
	s.logger.Infow("status server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *StatusServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *StatusServer) handleStats(c *gin.Context) {
	stats := s.source.FleetStats()
	out := make(map[string]domain.FleetReport, len(stats))
	for cat, report := range stats {
		out[string(cat)] = report
	}
	c.JSON(http.StatusOK, out)
}

func (s *StatusServer) handleAgents(c *gin.Context) {
	statuses := s.source.AgentStatuses()
	connected := 0
	for _, st := range statuses {
		if st.Connected {
			connected++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     len(statuses),
		"connected": connected,
		"agents":    statuses,
	})
}
