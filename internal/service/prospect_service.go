package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/makkenzo/prospect-enrichment-api/internal/contact"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/prospect"
	"github.com/makkenzo/prospect-enrichment-api/internal/handler/dto"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"github.com/makkenzo/prospect-enrichment-api/internal/tasks"
	"go.uber.org/zap"
)

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type ProspectService struct {
	repo     prospect.Repository
	enricher Enricher
	queue    TaskEnqueuer
	logger   *zap.Logger
}

// NewProspectService wires prospect enrichment. queue may be nil, in which
// case bulk enrichment is unavailable.
func NewProspectService(repo prospect.Repository, enricher Enricher, queue TaskEnqueuer, logger *zap.Logger) *ProspectService {
	return &ProspectService{
		repo:     repo,
		enricher: enricher,
		queue:    queue,
		logger:   logger.Named("ProspectService"),
	}
}

// EnrichProspect looks the prospect up with the provider and merges any
// contact data found into the stored record.
func (s *ProspectService) EnrichProspect(ctx context.Context, id uuid.UUID, category apikey.Category) (*prospect.EnrichOutcome, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, prospect.ErrNotFound) {
			return nil, fmt.Errorf("%w: prospect %s", ierr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("repository error loading prospect %s: %w", id, err)
	}

	query, err := QueryFor(rec)
	if err != nil {
		return nil, err
	}

	res, err := s.enricher.Enrich(ctx, enrichment.Request{Query: query, Category: category})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		s.logger.Info("Prospect not enriched",
			zap.String("prospect_id", id.String()),
			zap.String("error_kind", string(res.ErrorKind)),
		)
		return &prospect.EnrichOutcome{Record: rec, Result: res}, nil
	}

	merged := contact.Merge(*rec, res.Contact)
	if err := s.repo.UpdateContact(ctx, &merged, res.KeyID); err != nil {
		s.logger.Error("Failed to persist enriched prospect", zap.String("prospect_id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("repository error updating prospect %s: %w", id, err)
	}
	if res.KeyID != nil {
		keyID := *res.KeyID
		merged.EnrichedKeyID = &keyID
	}

	s.logger.Info("Prospect enriched",
		zap.String("prospect_id", id.String()),
		zap.String("key_suffix", res.KeySuffix),
		zap.Int("phones", len(merged.Phones)),
	)
	return &prospect.EnrichOutcome{Record: &merged, Result: res}, nil
}

// QueryFor prefers the LinkedIn URL and falls back to name and company.
func QueryFor(rec *prospect.ContactRecord) (enrichment.Query, error) {
	if u := strings.TrimSpace(rec.LinkedInURL); u != "" {
		return enrichment.LinkedInQuery{URL: u}, nil
	}

	first, last := strings.TrimSpace(rec.FirstName), strings.TrimSpace(rec.LastName)
	if first == "" && last == "" {
		if parts := strings.Fields(rec.FullName); len(parts) >= 2 {
			first, last = parts[0], strings.Join(parts[1:], " ")
		}
	}
	q := enrichment.NameQuery{FirstName: first, LastName: last, CompanyName: strings.TrimSpace(rec.Company)}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: prospect %s has no linkedin url and %v", ierr.ErrValidation, rec.ID, err)
	}
	return q, nil
}

// EnqueueBulk schedules one background enrichment per prospect. Prospects
// already queued for the same category are reported as skipped.
func (s *ProspectService) EnqueueBulk(ctx context.Context, ids []uuid.UUID, category apikey.Category) (*dto.BulkEnqueueResponse, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown key category %q", ierr.ErrValidation, category)
	}
	if s.queue == nil {
		return nil, fmt.Errorf("%w: background queue is not configured", ierr.ErrInternalServer)
	}

	resp := &dto.BulkEnqueueResponse{Skipped: []string{}}
	for _, id := range ids {
		task, err := tasks.NewEnrichProspectTask(id, category)
		if err != nil {
			return nil, fmt.Errorf("build enrichment task: %w", err)
		}
		info, err := s.queue.EnqueueContext(ctx, task)
		if err != nil {
			if errors.Is(err, asynq.ErrDuplicateTask) {
				resp.Skipped = append(resp.Skipped, id.String())
				continue
			}
			s.logger.Error("Failed to enqueue prospect enrichment", zap.String("prospect_id", id.String()), zap.Error(err))
			return nil, fmt.Errorf("enqueue prospect %s: %w", id, err)
		}
		s.logger.Debug("Prospect enrichment enqueued", zap.String("prospect_id", id.String()), zap.String("task_id", info.ID))
		resp.Enqueued++
	}

	s.logger.Info("Bulk enrichment enqueued", zap.Int("enqueued", resp.Enqueued), zap.Int("skipped", len(resp.Skipped)))
	return resp, nil
}
