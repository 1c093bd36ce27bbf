package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
	"github.com/makkenzo/prospect-enrichment-api/internal/handler/dto"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"github.com/makkenzo/prospect-enrichment-api/internal/service"
	"go.uber.org/zap"
)

type EnrichmentHandler struct {
	enricher service.Enricher
	logger   *zap.Logger
}

func NewEnrichmentHandler(enricher service.Enricher, logger *zap.Logger) *EnrichmentHandler {
	return &EnrichmentHandler{
		enricher: enricher,
		logger:   logger.Named("EnrichmentHandler"),
	}
}

// Enrich answers 200 with the structured result for every lookup outcome,
// including failures of the provider or the key pool.
func (h *EnrichmentHandler) Enrich(c *gin.Context) {
	var req dto.EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind enrich request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	query, err := QueryFromRequest(req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := h.enricher.Enrich(c.Request.Context(), enrichment.Request{
		Query:    query,
		Category: apikey.Category(req.Category),
	})
	if err != nil {
		h.logger.Error("Enrichment failed", zap.Error(err))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// QueryFromRequest enforces that exactly one query shape is populated.
func QueryFromRequest(req dto.EnrichRequest) (enrichment.Query, error) {
	linkedIn := strings.TrimSpace(req.LinkedInURL)
	hasName := strings.TrimSpace(req.FirstName) != "" || strings.TrimSpace(req.LastName) != "" || strings.TrimSpace(req.CompanyName) != ""

	switch {
	case linkedIn != "" && hasName:
		return nil, fmt.Errorf("%w: provide either linkedin_url or first_name, last_name and company_name, not both", ierr.ErrValidation)
	case linkedIn != "":
		return enrichment.LinkedInQuery{URL: linkedIn}, nil
	case hasName:
		q := enrichment.NameQuery{
			FirstName:   strings.TrimSpace(req.FirstName),
			LastName:    strings.TrimSpace(req.LastName),
			CompanyName: strings.TrimSpace(req.CompanyName),
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ierr.ErrValidation, err)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("%w: linkedin_url or first_name, last_name and company_name is required", ierr.ErrValidation)
	}
}

// bindError keeps validator errors intact for field details and tags the
// rest (malformed JSON) as validation failures.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%w: %v", ierr.ErrValidation, err)
}
