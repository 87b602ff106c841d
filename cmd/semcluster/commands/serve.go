package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
	"github.com/teranos/semcluster/metric"
	"github.com/teranos/semcluster/server"
)

// ServeCmd starts the HTTP API
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the clustering and embedding HTTP API",
	Long: `Start the HTTP API. Every configured model is checked against the embedding
backend before the listener opens; a missing model stops startup.

Routes: POST /cluster, POST /cluster/vectors, POST /embed, GET /models,
GET /health and GET /metrics (when metrics.enabled).

Clustering defaults, CORS origins and limits reload when the active config
file changes.`,
	RunE: runServe,
}

var (
	serveHost     string
	servePort     int
	serveNoWatch  bool
	serveNoBanner bool
)

func init() {
	ServeCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	ServeCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
	ServeCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload config on change")
	ServeCmd.Flags().BoolVar(&serveNoBanner, "no-banner", false, "Skip the startup banner")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Default to Info for the server so startup is visible
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = logger.VerbosityInfo
		if err := InitLogging(verbosity); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	ctx, cancel := signalContext()
	models, err := openModels(ctx, cfg)
	cancel()
	if err != nil {
		return errors.Wrap(err, "failed to load models")
	}
	defer models.Close()

	var reg *metric.Registry
	if cfg.Metrics.Enabled {
		reg = metric.NewRegistry()
	}
	var sink *metric.Metrics
	if reg != nil {
		sink = reg.Metrics
	}

	svc, err := newService(cfg, models, sink)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, svc, models, reg, logger.ComponentLogger("server"))
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	if !serveNoWatch && ConfigPath == "" {
		if path := am.ActiveConfigFile(); path != "" {
			if err := srv.WatchConfig(path); err != nil {
				logger.Warnw("Config hot reload disabled", "error", err)
			}
		}
	}

	if !serveNoBanner {
		printStartupBanner(verbosity, cfg, models.Names())
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		if err != nil {
			return errors.Wrap(err, "server failed to start")
		}
		return nil
	case <-sigChan:
		// First Ctrl+C - graceful shutdown
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Force shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}
