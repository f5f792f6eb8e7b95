package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/pipeline"
)

// systemInfoTimeout bounds the time spent collecting host metrics.
const systemInfoTimeout = 3 * time.Second

const bytesPerMB = 1024 * 1024

// SystemHandler reports host and process resource usage
type SystemHandler struct {
	memory  *pipeline.MemorySampler
	dataDir string
	started time.Time
	logger  *slog.Logger
}

// NewSystemHandler creates a new system handler. Disk usage is reported for dataDir.
func NewSystemHandler(dataDir string, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		memory:  pipeline.NewMemorySampler(),
		dataDir: dataDir,
		started: time.Now(),
		logger:  logging.OrDefault(logger),
	}
}

// SystemInfo is the response of the system info endpoint. Fields that could not be
// read on this platform are left zero.
type SystemInfo struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platform_version"`
	KernelVersion   string  `json:"kernel_version"`
	HostUptime      uint64  `json:"host_uptime_seconds"`
	CPUCount        int     `json:"cpu_count"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryTotalMB   float64 `json:"memory_total_mb"`
	MemoryUsedMB    float64 `json:"memory_used_mb"`
	MemoryPercent   float64 `json:"memory_percent"`
	DiskPath        string  `json:"disk_path"`
	DiskTotalMB     float64 `json:"disk_total_mb"`
	DiskFreeMB      float64 `json:"disk_free_mb"`
	ProcessMemoryMB float64 `json:"process_memory_mb"`
	Goroutines      int     `json:"goroutines"`
	GoVersion       string  `json:"go_version"`
	Uptime          float64 `json:"uptime_seconds"`
}

// Get returns host and process resource usage.
func (h *SystemHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), systemInfoTimeout)
	defer cancel()

	respondJSON(w, http.StatusOK, h.collect(ctx))
}

func (h *SystemHandler) collect(ctx context.Context) SystemInfo {
	info := SystemInfo{
		OS:              runtime.GOOS,
		DiskPath:        h.dataDir,
		ProcessMemoryMB: h.memory.SampleMB(),
		Goroutines:      runtime.NumGoroutine(),
		GoVersion:       runtime.Version(),
		Uptime:          time.Since(h.started).Seconds(),
	}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hi.Hostname
		info.Platform = hi.Platform
		info.PlatformVersion = hi.PlatformVersion
		info.KernelVersion = hi.KernelVersion
		info.HostUptime = hi.Uptime
	} else {
		h.logger.Debug("host info unavailable", "error", err)
	}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCount = n
	} else {
		info.CPUCount = runtime.NumCPU()
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		info.CPUPercent = pct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotalMB = float64(vm.Total) / bytesPerMB
		info.MemoryUsedMB = float64(vm.Used) / bytesPerMB
		info.MemoryPercent = vm.UsedPercent
	} else {
		h.logger.Debug("memory info unavailable", "error", err)
	}

	if h.dataDir != "" {
		if du, err := disk.UsageWithContext(ctx, h.dataDir); err == nil {
			info.DiskTotalMB = float64(du.Total) / bytesPerMB
			info.DiskFreeMB = float64(du.Free) / bytesPerMB
		} else {
			h.logger.Debug("disk usage unavailable", "path", h.dataDir, "error", err)
		}
	}

	return info
}
