// Package http provides HTTP handlers for recording field actions from local
// applications.
package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/fieldsync/internal/capture/http/dto"
	captureUseCase "github.com/allisson/fieldsync/internal/capture/usecase"
	"github.com/allisson/fieldsync/internal/envelope/domain"
	apperrors "github.com/allisson/fieldsync/internal/errors"
	"github.com/allisson/fieldsync/internal/httputil"
)

// CaptureHandler handles HTTP requests for recording actions and photos.
type CaptureHandler struct {
	captureUseCase captureUseCase.CaptureUseCase
	maxPhotoBytes  int64
	logger         *slog.Logger
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(
	useCase captureUseCase.CaptureUseCase,
	maxPhotoBytes int64,
	logger *slog.Logger,
) *CaptureHandler {
	return &CaptureHandler{
		captureUseCase: useCase,
		maxPhotoBytes:  maxPhotoBytes,
		logger:         logger,
	}
}

// RecordActionHandler records one action into the durable queue.
// POST /v1/actions
func (h *CaptureHandler) RecordActionHandler(c *gin.Context) {
	var req dto.RecordActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	id, err := h.captureUseCase.RecordAction(c.Request.Context(), domain.ActionKind(req.Kind), req.Payload)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.RecordActionResponse{ID: id})
}

// RecordPhotoHandler records one photo; the body is the raw image.
// POST /v1/photos
func (h *CaptureHandler) RecordPhotoHandler(c *gin.Context) {
	contentType := c.ContentType()
	if contentType == "" {
		httputil.HandleValidationErrorGin(c,
			apperrors.Wrap(apperrors.ErrInvalidInput, "Content-Type is required"), h.logger)
		return
	}

	image, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxPhotoBytes+1))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	if int64(len(image)) > h.maxPhotoBytes {
		httputil.HandleValidationErrorGin(c,
			apperrors.Wrap(apperrors.ErrInvalidInput, "image exceeds the maximum size"), h.logger)
		return
	}

	id, err := h.captureUseCase.RecordPhoto(c.Request.Context(), image, contentType)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.RecordPhotoResponse{ID: id})
}
