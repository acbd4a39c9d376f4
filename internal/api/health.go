package api

import (
	"net/http"
	"time"

	"github.com/snarg/pullquote/internal/database"
	"github.com/snarg/pullquote/internal/media"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	MissingTools  []string          `json:"missing_tools,omitempty"`
}

// BrokerStatus reports MQTT connectivity. Implemented by the notify package.
type BrokerStatus interface {
	IsConnected() bool
}

type HealthHandler struct {
	db        *database.DB
	broker    BrokerStatus
	version   string
	startTime time.Time
}

func NewHealthHandler(db *database.DB, broker BrokerStatus, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		broker:    broker,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	// MQTT check
	if h.broker != nil {
		if h.broker.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	// External tool check: the pipeline cannot run without yt-dlp and ffmpeg.
	missing := media.CheckTools()
	if len(missing) > 0 {
		checks["tools"] = "missing"
		if status == "healthy" {
			status = "degraded"
		}
	} else {
		checks["tools"] = "ok"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		MissingTools:  missing,
	})
}
