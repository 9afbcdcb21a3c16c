// Package http provides HTTP handlers for the agent observer surface.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/fieldsync/internal/httputil"
	"github.com/allisson/fieldsync/internal/status/http/dto"
	statusUseCase "github.com/allisson/fieldsync/internal/status/usecase"
)

// StatusHandler handles HTTP requests for queue health and manual sync.
type StatusHandler struct {
	statusUseCase statusUseCase.StatusUseCase
	logger        *slog.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(useCase statusUseCase.StatusUseCase, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		statusUseCase: useCase,
		logger:        logger,
	}
}

// GetStatusHandler returns the agent snapshot.
// GET /v1/status
func (h *StatusHandler) GetStatusHandler(c *gin.Context) {
	status, err := h.statusUseCase.Status(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapStatusToResponse(status))
}

// ListFailedHandler returns envelopes parked in terminal failure states.
// GET /v1/envelopes/failed?limit=N
func (h *StatusHandler) ListFailedHandler(c *gin.Context) {
	limit, err := httputil.ParseLimit(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	envelopes, err := h.statusUseCase.ListFailed(c.Request.Context(), limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEnvelopesToListFailedResponse(envelopes))
}

// TriggerSyncHandler runs a drain cycle immediately.
// POST /v1/sync
func (h *StatusHandler) TriggerSyncHandler(c *gin.Context) {
	if err := h.statusUseCase.TriggerSync(c.Request.Context()); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.SyncTriggeredResponse{Synced: true})
}
