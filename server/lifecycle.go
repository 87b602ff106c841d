package server

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
)

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

// stateString returns human-readable state name
func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Start listens on the configured address and serves until Stop.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "failed to listen on %s", s.addr),
			"set server.port or API_PORT to a free port")
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Desugar()),
	}

	s.mu.Lock()
	if s.getState() != ServerStateRunning {
		s.mu.Unlock()
		return errors.New("server already stopped")
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Infow("Server ready",
		logger.FieldAddress, ln.Addr().String(),
		"models", s.models.Names(),
		"max_concurrent", s.maxConcurrent,
		"metrics_path", s.metricsPath,
	)

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// WatchConfig reloads clustering defaults and server settings when path
// changes on disk
func (s *Server) WatchConfig(path string) error {
	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		return err
	}
	watcher.OnReload(s.ApplyConfig)
	watcher.Start()
	am.SetGlobalWatcher(watcher)

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	s.logger.Infow("Watching config for changes", "path", path)
	return nil
}

// Stop drains in-flight requests for up to ShutdownTimeout, then closes
// the listener and the config watcher
func (s *Server) Stop() error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	s.mu.Lock()
	srv := s.httpServer
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	var shutdownErr error
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			s.logger.Warnw("Failed to stop config watcher", "error", err)
		}
		am.SetGlobalWatcher(nil)
	}

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "graceful shutdown did not finish")
			s.logger.Warnw("Forcing server close", "error", err, "in_flight", s.inFlight.Load())
			_ = srv.Close()
		}
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server stopped")
	return shutdownErr
}
