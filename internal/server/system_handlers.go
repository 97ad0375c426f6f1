package server

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		startupTime: time.Now(),
	}
}

// HandleStatus returns process and host statistics. Metrics that fail to
// collect are reported as null rather than failing the endpoint.
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.startupTime).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status["host_memory"] = map[string]interface{}{
			"total_mb":     vm.Total / 1024 / 1024,
			"used_percent": vm.UsedPercent,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to read host memory stats")
		status["host_memory"] = nil
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	} else {
		status["cpu_percent"] = nil
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil {
			status["process_rss_mb"] = memInfo.RSS / 1024 / 1024
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}
