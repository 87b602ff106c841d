// Package commands holds the semcluster CLI subcommands.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/cluster"
	"github.com/teranos/semcluster/embeddings"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
	"github.com/teranos/semcluster/metric"
)

// ConfigPath, when set by --config, replaces the am.toml cascade with one file
var ConfigPath string

// loadConfig loads and validates the active configuration
func loadConfig() (*am.Config, error) {
	var cfg *am.Config
	var err error
	if ConfigPath != "" {
		cfg, err = am.LoadFromFile(ConfigPath)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(
			errors.Wrap(err, "invalid configuration"),
			"run 'semcluster am validate' or 'semcluster am where' to find the offending file")
	}
	return cfg, nil
}

// InitLogging sets up the global logger from -v flags and the log section.
// An explicit -v wins over log.level.
func InitLogging(verbosity int) error {
	jsonOutput := false
	cfg, cfgErr := loadConfig()
	if cfgErr == nil {
		jsonOutput = cfg.Log.JSON
	}

	if err := logger.Initialize(jsonOutput, verbosity); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	if cfgErr == nil && verbosity == 0 && cfg.Log.Level != "" {
		if !logger.SetLevelName(cfg.Log.Level) {
			logger.Warnw("Unknown log.level, keeping default", "level", cfg.Log.Level)
		}
	}
	return nil
}

// openModels builds the model registry from cfg and initialises every model
func openModels(ctx context.Context, cfg *am.Config) (*embeddings.Registry, error) {
	models, err := embeddings.FromConfig(cfg, logger.ComponentLogger("embeddings"))
	if err != nil {
		return nil, err
	}
	if err := models.Initialize(ctx); err != nil {
		_ = models.Close()
		return nil, err
	}
	return models, nil
}

// newService wires the cluster service. models may be nil for vector-only use.
func newService(cfg *am.Config, models cluster.Models, m *metric.Metrics) (*cluster.Service, error) {
	return cluster.NewService(models, cfg.Clustering, m, logger.ComponentLogger("cluster"))
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
