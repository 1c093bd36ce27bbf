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

type APIKeyHandler struct {
	service *service.APIKeyService
	logger  *zap.Logger
}

func NewAPIKeyHandler(service *service.APIKeyService, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		service: service,
		logger:  logger.Named("APIKeyHandler"),
	}
}

func (h *APIKeyHandler) BulkAdd(c *gin.Context) {
	var req dto.BulkAddAPIKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind bulk add api keys request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	res, err := h.service.BulkAdd(c.Request.Context(), req.Keys, apikey.Category(req.Category))
	if err != nil {
		h.logger.Error("Service failed to import api keys", zap.Error(err))
		_ = c.Error(err)
		return
	}

	h.logger.Info("API keys imported via handler", zap.Int("added", res.Added), zap.Int("failed", len(res.Errors)))
	c.JSON(http.StatusCreated, res)
}

func (h *APIKeyHandler) List(c *gin.Context) {
	var filter apikey.ListFilter
	if raw := c.Query("category"); raw != "" {
		category, err := apikey.ParseCategory(raw)
		if err != nil {
			_ = c.Error(fmt.Errorf("%w: %v", ierr.ErrValidation, err))
			return
		}
		filter.Category = &category
	}
	if raw := c.Query("status"); raw != "" {
		status := apikey.Status(raw)
		switch status {
		case apikey.StatusActive, apikey.StatusExhausted, apikey.StatusInvalid, apikey.StatusSuspended:
			filter.Status = &status
		default:
			_ = c.Error(fmt.Errorf("%w: unknown key status %q", ierr.ErrValidation, raw))
			return
		}
	}

	keys, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Service failed to list api keys", zap.Error(err))
		_ = c.Error(err)
		return
	}

	h.logger.Debug("API Keys listed successfully via handler", zap.Int("count", len(keys)))
	c.JSON(http.StatusOK, keys)
}

func (h *APIKeyHandler) SetActive(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req dto.SetAPIKeyActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind set active request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	resp, err := h.service.SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		h.logger.Error("Service failed to toggle api key", zap.String("id", id.String()), zap.Error(err))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *APIKeyHandler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("Service failed to delete api key", zap.String("id", id.String()), zap.Error(err))
		_ = c.Error(err)
		return
	}

	h.logger.Info("API Key deleted successfully via handler", zap.String("id", id.String()))
	c.Status(http.StatusNoContent)
}

func (h *APIKeyHandler) Stats(c *gin.Context) {
	stats, err := h.service.PoolStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Service failed to collect pool stats", zap.Error(err))
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *APIKeyHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid UUID format for api key", zap.String("id_param", idStr), zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: invalid api key id format", ierr.ErrValidation))
		return uuid.Nil, false
	}
	return id, true
}
