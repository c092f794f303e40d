package api

import (
	"net/http"
	"time"

	"github.com/snarg/transcriber/internal/transcribe"
)

// PoolInfo exposes the worker pool state reported by the health endpoint.
type PoolInfo interface {
	Name() string
	Model() string
	Stats() transcribe.QueueStats
}

type HealthResponse struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Provider      string                `json:"provider"`
	Model         string                `json:"model"`
	Checks        map[string]string     `json:"checks"`
	Queue         transcribe.QueueStats `json:"queue"`
}

type HealthHandler struct {
	pool      PoolInfo
	version   string
	startTime time.Time
}

func NewHealthHandler(pool PoolInfo, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		pool:      pool,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	var stats transcribe.QueueStats
	resp := HealthResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	if h.pool == nil {
		checks["model"] = "not_configured"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		stats = h.pool.Stats()
		resp.Provider = h.pool.Name()
		resp.Model = h.pool.Model()

		if stats.Workers > 0 {
			checks["model"] = "ok"
		} else {
			checks["model"] = "not_loaded"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}

		// A full queue means new uploads are being turned away with 503.
		if stats.Capacity > 0 && stats.Pending >= stats.Capacity {
			checks["queue"] = "full"
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["queue"] = "ok"
		}
	}

	resp.Status = status
	resp.Queue = stats
	WriteJSON(w, httpStatus, resp)
}
