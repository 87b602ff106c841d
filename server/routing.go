package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/semcluster/logger"
)

const (
	routeAPICluster     = "/api/cluster"
	routeClusterVectors = "/cluster/vectors"
	headerRequestID     = "X-Request-ID"
)

// setupRoutes registers every route on a fresh mux
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(routeCluster, s.route(routeCluster, s.handleCluster))
	mux.HandleFunc(routeAPICluster, s.route(routeCluster, s.handleCluster))
	mux.HandleFunc(routeClusterVectors, s.route(routeClusterVectors, s.handleClusterVectors))
	mux.HandleFunc(routeEmbed, s.route(routeEmbed, s.handleEmbed))
	mux.HandleFunc(routeModels, s.route(routeModels, s.handleModels))
	mux.HandleFunc(routeHealth, s.route(routeHealth, s.handleHealth))

	if s.metricsPath != "" {
		mux.Handle(s.metricsPath, s.metrics.Handler())
	}
	return mux
}

// route wraps a handler with metrics, request context and CORS, outermost first
func (s *Server) route(name string, next http.HandlerFunc) http.HandlerFunc {
	return s.instrument(name, s.withRequestContext(s.corsMiddleware(next)))
}

// statusRecorder remembers the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics and rejects work while draining
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if s.getState() != ServerStateRunning && name != routeHealth {
			writeError(rec, http.StatusServiceUnavailable, "Server is shutting down")
		} else {
			next(rec, r)
		}

		elapsed := time.Since(start)
		s.metricsSink().RecordRequest(name, rec.status, elapsed)
		s.logger.Debugw("HTTP request",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, elapsed.Milliseconds(),
			logger.FieldRequestID, rec.Header().Get(headerRequestID),
		)
	}
}

// withRequestContext tags the request with an id and applies the request timeout
func (s *Server) withRequestContext(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		ctx := logger.WithRequestID(r.Context(), id)
		if timeout := time.Duration(s.requestTimeout.Load()); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		next(w, r.WithContext(ctx))
	}
}

// corsMiddleware sets CORS headers for origins allowed by server.allowed_origins
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && checkOrigin(origin, s.allowedOrigins()) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}
