package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles system-wide monitoring endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	pingDB      func() error
}

// NewSystemHandlers creates the system handlers. pingDB checks database
// liveness for the health report.
func NewSystemHandlers(log zerolog.Logger, pingDB func() error) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		startupTime: time.Now().UTC(),
		pingDB:      pingDB,
	}
}

// RegisterRoutes registers all system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
	})
}

// HealthResponse reports process and database health.
type HealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Database      string  `json:"database"`
}

func (h *SystemHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuAvg, memUsed := h.systemStats()

	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		CPUPercent:    cpuAvg,
		MemoryPercent: memUsed,
		Database:      "ok",
	}
	if err := h.pingDB(); err != nil {
		h.log.Error().Err(err).Msg("Database health check failed")
		resp.Status = "degraded"
		resp.Database = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// systemStats samples CPU and RAM usage. The short CPU interval keeps the
// endpoint fast for pollers.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
