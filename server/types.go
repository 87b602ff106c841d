package server

import (
	"time"

	"github.com/teranos/semcluster/embeddings"
)

const (
	// ShutdownTimeout is how long in-flight clusterings get to finish on Stop
	ShutdownTimeout = 60 * time.Second

	// readHeaderTimeout bounds slow clients before a handler runs
	readHeaderTimeout = 10 * time.Second
)

// ServerState represents the server lifecycle state
type ServerState int

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

// Route names double as the metrics "route" label
const (
	routeCluster = "/cluster"
	routeEmbed   = "/embed"
	routeModels  = "/models"
	routeHealth  = "/health"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string                 `json:"status"`
	State         string                 `json:"state"`
	Version       string                 `json:"version"`
	Commit        string                 `json:"commit"`
	BuildTime     string                 `json:"build_time"`
	GoVersion     string                 `json:"go_version"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	DefaultModel  string                 `json:"default_model"`
	Models        []embeddings.ModelInfo `json:"models"`
	InFlight      int64                  `json:"in_flight"`
	MaxConcurrent int64                  `json:"max_concurrent"`
	System        *SystemInfo            `json:"system,omitempty"`
}

// SystemInfo is the host snapshot reported on /health
type SystemInfo struct {
	CPUs           int     `json:"cpus"`
	LogicalCPUs    int     `json:"logical_cpus"`
	MemTotalBytes  uint64  `json:"mem_total_bytes"`
	MemUsedBytes   uint64  `json:"mem_used_bytes"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	Goroutines     int     `json:"goroutines"`
}
