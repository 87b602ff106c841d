package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/semcluster/version"
)

// handleHealth serves the health check with version, models and host stats.
// A draining server answers 503 so load balancers stop routing to it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	versionInfo := version.Get()
	state := s.getState()

	health := HealthResponse{
		Status:        "ok",
		State:         stateString(state),
		Version:       versionInfo.Version,
		Commit:        versionInfo.CommitHash,
		BuildTime:     versionInfo.BuildTime,
		GoVersion:     versionInfo.GoVersion,
		UptimeSeconds: time.Since(s.started).Seconds(),
		DefaultModel:  s.models.Default(),
		Models:        s.models.Models(),
		InFlight:      s.inFlight.Load(),
		MaxConcurrent: s.maxConcurrent,
		System:        s.systemInfo(),
	}

	status := http.StatusOK
	if state != ServerStateRunning {
		health.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	_ = writeJSON(w, status, health)
}

// systemInfo reads host memory and CPU counts. Fields gopsutil cannot read
// on this platform stay zero.
func (s *Server) systemInfo() *SystemInfo {
	info := &SystemInfo{
		LogicalCPUs: runtime.NumCPU(),
		Goroutines:  runtime.NumGoroutine(),
	}

	if v, err := mem.VirtualMemory(); err == nil {
		info.MemTotalBytes = v.Total
		info.MemUsedBytes = v.Used
		info.MemUsedPercent = v.UsedPercent
	} else {
		s.logger.Debugw("Failed to read memory stats", "error", err)
	}

	if n, err := cpu.Counts(false); err == nil {
		info.CPUs = n
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.LogicalCPUs = n
	}
	return info
}
