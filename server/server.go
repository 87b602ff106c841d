// Package server exposes the clustering pipeline and the embedding API over
// HTTP.
//
// Routes:
//   - POST /cluster (also /api/cluster): embed texts and cluster them
//   - POST /cluster/vectors: cluster caller-supplied vectors
//   - POST /embed: FlagEmbedding-compatible embedding endpoint
//   - GET  /models: loaded model names
//   - GET  /health: version, uptime, models and host stats
//   - GET  /metrics: Prometheus metrics, when enabled
package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/cluster"
	"github.com/teranos/semcluster/embeddings"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
	"github.com/teranos/semcluster/metric"
)

// Models is the model source the server needs. *embeddings.Registry
// satisfies it.
type Models interface {
	cluster.Models
	Names() []string
	Models() []embeddings.ModelInfo
}

// Server serves the HTTP API
type Server struct {
	service *cluster.Service
	models  Models
	metrics *metric.Registry // nil disables /metrics and request metrics
	logger  *zap.SugaredLogger

	// bounds simultaneous clusterings, each one is O(N²) in memory
	sem           *semaphore.Weighted
	maxConcurrent int64
	inFlight      atomic.Int64

	// hot-reloadable settings
	origins        atomic.Pointer[[]string]
	requestTimeout atomic.Int64 // nanoseconds, 0 = none
	maxBodyBytes   atomic.Int64 // 0 = unlimited

	addr        string
	metricsPath string
	handler     http.Handler
	started     time.Time
	state       atomic.Int32

	mu         sync.Mutex
	httpServer *http.Server
	watcher    *am.ConfigWatcher
}

// New creates a server for cfg. reg may be nil to run without metrics.
func New(cfg *am.Config, service *cluster.Service, models Models, reg *metric.Registry, log *zap.SugaredLogger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config is required")
	}
	if service == nil || models == nil {
		return nil, errors.New("server needs a cluster service and a model source")
	}
	if log == nil {
		log = logger.ComponentLogger("server")
	}

	maxConcurrent := int64(cfg.MaxConcurrentClusterings())
	s := &Server{
		service:       service,
		models:        models,
		metrics:       reg,
		logger:        log,
		sem:           semaphore.NewWeighted(maxConcurrent),
		maxConcurrent: maxConcurrent,
		addr:          cfg.Addr(),
		started:       time.Now(),
	}
	if cfg.Metrics.Enabled && reg != nil {
		s.metricsPath = cfg.Metrics.Path
		if s.metricsPath == "" {
			s.metricsPath = "/metrics"
		}
	}
	s.applyServerConfig(cfg.Server)
	s.handler = s.setupRoutes()
	s.setState(ServerStateRunning)
	return s, nil
}

// Handler returns the routed handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the configured listen address
func (s *Server) Addr() string {
	return s.addr
}

// ApplyConfig takes the reloadable parts of a new config: clustering
// defaults, CORS origins, request timeout and body limit. Listen address
// and concurrency bound need a restart.
func (s *Server) ApplyConfig(cfg *am.Config) error {
	if err := s.service.UpdateConfig(cfg.Clustering); err != nil {
		return err
	}
	s.applyServerConfig(cfg.Server)
	if int64(cfg.MaxConcurrentClusterings()) != s.maxConcurrent {
		s.logger.Warnw("clustering.max_concurrent changed, restart to apply",
			"current", s.maxConcurrent,
			"configured", cfg.MaxConcurrentClusterings(),
		)
	}
	return nil
}

func (s *Server) applyServerConfig(cfg am.ServerConfig) {
	origins := append([]string(nil), cfg.AllowedOrigins...)
	s.origins.Store(&origins)
	s.requestTimeout.Store(int64(time.Duration(cfg.RequestTimeoutSeconds) * time.Second))
	s.maxBodyBytes.Store(cfg.MaxBodyBytes)
}

func (s *Server) allowedOrigins() []string {
	if p := s.origins.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Server) metricsSink() *metric.Metrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Metrics
}
