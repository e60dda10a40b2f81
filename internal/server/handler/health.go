package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker reports whether the downstream transfer daemon is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	transfer HealthChecker
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler probing the given transfer service.
func NewHealthHandler(transfer HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{transfer: transfer, logger: logger}
}

// HealthCheck reports server liveness and transfer daemon reachability.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	transferStatus := "ok"
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.transfer.HealthCheck(ctx); err != nil {
		h.logger.WarnContext(r.Context(), "transfer daemon unreachable",
			slog.String("error", err.Error()),
		)
		transferStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":    "ok",
		"transfer":  transferStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
