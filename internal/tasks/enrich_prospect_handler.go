package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/prospect"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"go.uber.org/zap"
)

type ProspectEnricher interface {
	EnrichProspect(ctx context.Context, id uuid.UUID, category apikey.Category) (*prospect.EnrichOutcome, error)
}

type EnrichProspectHandler struct {
	enricher ProspectEnricher
	logger   *zap.Logger
}

func NewEnrichProspectHandler(enricher ProspectEnricher, logger *zap.Logger) *EnrichProspectHandler {
	return &EnrichProspectHandler{
		enricher: enricher,
		logger:   logger.Named("EnrichProspectHandler"),
	}
}

// ProcessTask enriches one prospect. Only store outages are retried: an empty
// key pool needs an admin, and every other outcome is a final answer.
func (h *EnrichProspectHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeProspectEnrich {
		return fmt.Errorf("unexpected task type: %s: %w", t.Type(), asynq.SkipRetry)
	}

	var p EnrichProspectPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for prospect enrichment task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(zap.String("prospect_id", p.ProspectID.String()), zap.String("category", string(p.Category)))
	log.Info("Processing prospect enrichment task...")

	out, err := h.enricher.EnrichProspect(ctx, p.ProspectID, p.Category)
	if err != nil {
		if errors.Is(err, ierr.ErrNotFound) || errors.Is(err, ierr.ErrValidation) {
			log.Warn("Prospect cannot be enriched", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		log.Error("Prospect enrichment failed", zap.Error(err))
		return err
	}

	res := out.Result
	switch res.ErrorKind {
	case enrichment.KindNone:
		log.Info("Prospect enriched", zap.String("key_suffix", res.KeySuffix), zap.Int("attempts", res.Attempts))
		return nil
	case enrichment.KindNoKeysAvailable:
		log.Warn("Key pool empty, dropping task", zap.String("message", res.Message))
		return fmt.Errorf("%s: %w", res.Message, asynq.SkipRetry)
	case enrichment.KindStoreUnavailable:
		log.Error("Key pool store unavailable, will retry", zap.String("message", res.Message))
		return fmt.Errorf("%w: %s", ierr.ErrStoreUnavailable, res.Message)
	default:
		log.Info("Prospect enrichment finished without contact data",
			zap.String("error_kind", string(res.ErrorKind)),
			zap.String("message", res.Message),
			zap.Int("attempts", res.Attempts),
		)
		return nil
	}
}
