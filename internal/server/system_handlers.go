package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStatusResponse is returned by GET /api/system/status.
type SystemStatusResponse struct {
	Status            string  `json:"status"`
	UptimeSeconds     int64   `json:"uptime_seconds"`
	GoVersion         string  `json:"go_version"`
	Goroutines        int     `json:"goroutines"`
	HeapMB            float64 `json:"heap_mb"`
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryPercent     float64 `json:"memory_percent"`
	CacheDB           string  `json:"cache_db"`
	RemainingRequests *int    `json:"remaining_api_requests,omitempty"`
}

// DiskUsageResponse is returned by GET /api/system/disk.
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	ReportsMB   float64 `json:"reports_mb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// handleSystemStatus handles GET /api/system/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	cpuPercent, memPercent := s.getSystemStats()
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		HeapMB:        float64(ms.HeapAlloc) / 1024 / 1024,
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		CacheDB:       "disabled",
	}

	if s.cacheDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cacheDB.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Cache database health check failed")
			response.CacheDB = "unhealthy"
			response.Status = "degraded"
		} else {
			response.CacheDB = "healthy"
		}
	}
	if s.budget != nil {
		remaining := s.budget.GetRemainingRequests()
		response.RemainingRequests = &remaining
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleDiskUsage handles GET /api/system/disk
func (s *Server) handleDiskUsage(w http.ResponseWriter, r *http.Request) {
	response := DiskUsageResponse{
		DataDirMB: s.getDirSize(s.dataDir),
		ReportsMB: s.getDirSize(filepath.Join(s.dataDir, "reports")),
	}
	if usage, err := disk.Usage(s.dataDir); err != nil {
		s.log.Warn().Err(err).Msg("Failed to get disk usage")
	} else {
		response.FreeGB = float64(usage.Free) / 1e9
		response.UsedPercent = usage.UsedPercent
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleListJobs handles GET /api/system/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"jobs": s.jobs.JobNames(),
	})
}

// handleTriggerJob handles POST /api/system/jobs/{name}. The job runs in the
// background; its outcome is logged.
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	known := false
	for _, n := range s.jobs.JobNames() {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("job %s not registered", name))
		return
	}

	s.log.Info().Str("job", name).Msg("Manual job triggered")
	go func() {
		if err := s.jobs.RunNow(name); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("Manual job failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "queued",
		"message": fmt.Sprintf("job %s started", name),
	})
}

// getSystemStats samples CPU over a short window to keep the endpoint fast.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// getDirSize calculates total size of a directory in MB
func (s *Server) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}
