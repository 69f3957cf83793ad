package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/frontend"
)

// healthCheckTimeout bounds each dependency check in /health.
const healthCheckTimeout = 2 * time.Second

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     HubStats        `json:"websocket"`
	Locks         LockMetrics     `json:"locks"`
	Catalog       CatalogMetrics  `json:"catalog"`
	Handlers      HandlerMetrics  `json:"handlers"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// LockMetrics counts active locks.
type LockMetrics struct {
	Active  int            `json:"active"`
	ByMode  map[string]int `json:"by_mode"`
	Covered int            `json:"commands_covered"`
}

// CatalogMetrics contains command catalog statistics.
type CatalogMetrics struct {
	Endpoints  int            `json:"endpoints"`
	Commands   int            `json:"commands"`
	ByProtocol map[string]int `json:"by_protocol"`
}

// HandlerMetrics counts live front-end handlers.
type HandlerMetrics struct {
	Registered int `json:"registered"`
	Up         int `json:"up"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: s.hub.Stats(),
		Locks:     LockMetrics{ByMode: make(map[string]int)},
	}

	for _, l := range s.locks.List(r.Context()) {
		metrics.Locks.Active++
		metrics.Locks.ByMode[string(l.Mode)]++
		metrics.Locks.Covered += len(l.CommandIDs)
	}

	stats := s.catalog.Stats()
	metrics.Catalog = CatalogMetrics{
		Endpoints:  stats.Endpoints,
		Commands:   stats.Commands,
		ByProtocol: stats.ByProtocol,
	}

	metrics.Handlers.Registered = s.handlers.Len()
	if eps, err := s.catalog.ListEndpoints(r.Context()); err == nil {
		for _, ep := range eps {
			if inst, ok := s.handlers.Lookup(ep.ID); ok && inst.Status() == frontend.StatusUp {
				metrics.Handlers.Up++
			}
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// handlePrometheus serves the Prometheus exposition format.
func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeNotFound(w, "prometheus metrics not enabled")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

// handleHealth runs every registered check. Any failure makes the
// response 503 so load balancers stop routing to this instance.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  results,
	})
}
