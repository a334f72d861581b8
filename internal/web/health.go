package web

import (
	"context"
	"net/http"
	"time"

	"github.com/haasonsaas/steward/internal/validate"
)

// healthProbeTimeout bounds each dependency check so a hung backend cannot
// stall the readiness endpoint.
const healthProbeTimeout = 2 * time.Second

// readyResponse reports which dependencies answered the readiness probe.
type readyResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	TaskService string `json:"task_service"`
	Error       string `json:"error,omitempty"`
}

// handleHealth handles GET /api/health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	h.jsonResponse(w, map[string]string{"status": "healthy"})
}

// handleLive handles GET /api/health/live. Process-up check only; no
// dependencies are touched.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	h.jsonResponse(w, map[string]string{"status": "alive"})
}

// handleReady handles GET /api/health/ready. The store and the task service
// must both answer before this instance advertises ready; a failing
// dependency turns the probe into a 503 so load balancers stop routing here.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	resp := readyResponse{
		Status:      "ready",
		Database:    "connected",
		TaskService: "connected",
	}
	ready := true

	if err := h.config.Store.Ping(ctx); err != nil {
		resp.Database = "disconnected"
		resp.Error = validate.SanitizeError(err.Error())
		ready = false
	}

	if h.config.TaskPinger == nil {
		resp.TaskService = "not configured"
	} else if err := h.config.TaskPinger.Ping(ctx); err != nil {
		resp.TaskService = "disconnected"
		if resp.Error == "" {
			resp.Error = validate.SanitizeError(err.Error())
		}
		ready = false
	}

	if !ready {
		resp.Status = "not_ready"
		h.jsonWithStatus(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.jsonResponse(w, resp)
}
