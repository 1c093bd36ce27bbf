package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/handler/dto"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"github.com/makkenzo/prospect-enrichment-api/internal/service"
	"go.uber.org/zap"
)

type ProspectHandler struct {
	service *service.ProspectService
	logger  *zap.Logger
}

func NewProspectHandler(service *service.ProspectService, logger *zap.Logger) *ProspectHandler {
	return &ProspectHandler{
		service: service,
		logger:  logger.Named("ProspectHandler"),
	}
}

func (h *ProspectHandler) Enrich(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid UUID format for prospect", zap.String("id_param", idStr), zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: invalid prospect id format", ierr.ErrValidation))
		return
	}

	var req dto.EnrichProspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	out, err := h.service.EnrichProspect(c.Request.Context(), id, apikey.Category(req.Category))
	if err != nil {
		h.logger.Error("Service failed to enrich prospect", zap.String("id", id.String()), zap.Error(err))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (h *ProspectHandler) EnqueueBulk(c *gin.Context) {
	var req dto.BulkEnrichProspectsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind bulk enrich request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	ids := make([]uuid.UUID, 0, len(req.ProspectIDs))
	for _, raw := range req.ProspectIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = c.Error(fmt.Errorf("%w: invalid prospect id %q", ierr.ErrValidation, raw))
			return
		}
		ids = append(ids, id)
	}

	resp, err := h.service.EnqueueBulk(c.Request.Context(), ids, apikey.Category(req.Category))
	if err != nil {
		h.logger.Error("Service failed to enqueue bulk enrichment", zap.Error(err))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}
