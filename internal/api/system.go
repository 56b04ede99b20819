package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"
)

// healthCheckTimeout bounds each component probe in GET /health.
const healthCheckTimeout = 3 * time.Second

// HealthResponse reports the controller and its dependencies.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Door       string            `json:"door"`
	Components map[string]string `json:"components,omitempty"`
}

// SystemStats is the response of GET /system.
type SystemStats struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`

	// AuthorizedPlates is -1 when the store is absent or unreadable.
	AuthorizedPlates int `json:"authorized_plates"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// handleHealth probes every registered component. A failing component
// makes the status "degraded" but the endpoint still answers 200: the
// door keeps working without the broker or telemetry.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Door:    s.door.Snapshot().State.String(),
	}

	if len(s.checks) > 0 {
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Components = make(map[string]string, len(names))
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleAdapters returns the health of every event source.
func (s *Server) handleAdapters(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, map[string]any{"adapters": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"adapters": s.status.Snapshot()})
}

// handleSystem returns runtime statistics.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	plates := -1
	if s.plates != nil {
		n, err := s.plates.Count(r.Context())
		if err != nil {
			s.logger.Warn("counting authorised plates", "error", err)
		} else {
			plates = n
		}
	}

	writeJSON(w, http.StatusOK, SystemStats{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		AuthorizedPlates: plates,
	})
}
