package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/horizon/internal/database"
)

// SystemHandlers serves system monitoring endpoints.
type SystemHandlers struct {
	snapshotsDB *database.DB
	startupTime time.Time
	log         zerolog.Logger
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(snapshotsDB *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		snapshotsDB: snapshotsDB,
		startupTime: time.Now(),
		log:         log.With().Str("handler", "system").Logger(),
	}
}

// healthResponse is the body of GET /api/system/health.
type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DatabaseOK    bool    `json:"database_ok"`
}

// Health handles GET /api/system/health
func (h *SystemHandlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		resp.CPUPercent = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryPercent = vm.UsedPercent
	}

	if err := h.snapshotsDB.Ping(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Snapshot database unreachable")
		resp.Status = "degraded"
	} else {
		resp.DatabaseOK = true
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
