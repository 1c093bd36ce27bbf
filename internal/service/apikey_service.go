package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/handler/dto"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"go.uber.org/zap"
)

type APIKeyService struct {
	repo   apikey.Repository
	logger *zap.Logger
}

func NewAPIKeyService(repo apikey.Repository, logger *zap.Logger) *APIKeyService {
	return &APIKeyService{
		repo:   repo,
		logger: logger.Named("APIKeyService"),
	}
}

// SplitKeyLines returns the non-blank trimmed lines of pasted text.
func SplitKeyLines(raw string) []string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// BulkAdd imports one active key per non-blank line. A failing line is
// reported in the result and does not abort the batch.
func (s *APIKeyService) BulkAdd(ctx context.Context, raw string, category apikey.Category) (*apikey.BulkAddResult, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown key category %q", ierr.ErrValidation, category)
	}
	lines := SplitKeyLines(raw)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no keys supplied", ierr.ErrValidation)
	}

	s.logger.Info("Importing provider api keys", zap.String("category", string(category)), zap.Int("lines", len(lines)))

	result := &apikey.BulkAddResult{Errors: []string{}}
	for _, value := range lines {
		_, err := s.repo.Create(ctx, &apikey.APIKey{
			Value:    value,
			Category: category,
			Status:   apikey.StatusActive,
			IsActive: true,
		})
		if err != nil {
			msg := err.Error()
			if errors.Is(err, apikey.ErrDuplicateKey) {
				msg = "key already exists"
			}
			s.logger.Warn("Failed to import key", zap.String("key_suffix", apikey.KeySuffix(value)), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", apikey.Preview(value), msg))
			continue
		}
		result.Added++
	}

	s.logger.Info("Provider api keys imported", zap.Int("added", result.Added), zap.Int("failed", len(result.Errors)))
	return result, nil
}

func (s *APIKeyService) List(ctx context.Context, filter apikey.ListFilter) ([]*dto.APIKeyResponse, error) {
	s.logger.Debug("Listing provider api keys")
	keys, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list api keys from repository", zap.Error(err))
		return nil, fmt.Errorf("repository error listing api keys: %w", err)
	}

	responses := make([]*dto.APIKeyResponse, len(keys))
	for i, key := range keys {
		responses[i] = ToAPIKeyResponse(key)
	}
	return responses, nil
}

func (s *APIKeyService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*dto.APIKeyResponse, error) {
	s.logger.Info("Toggling provider api key", zap.String("id", id.String()), zap.Bool("active", active))
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, apikey.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: api key %s", ierr.ErrNotFound, id)
		}
		s.logger.Error("Failed to toggle api key", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("repository error toggling api key %s: %w", id, err)
	}

	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("repository error loading api key %s: %w", id, err)
	}
	return ToAPIKeyResponse(key), nil
}

func (s *APIKeyService) Delete(ctx context.Context, id uuid.UUID) error {
	s.logger.Info("Deleting provider api key", zap.String("id", id.String()))
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, apikey.ErrKeyNotFound) {
			return fmt.Errorf("%w: api key %s", ierr.ErrNotFound, id)
		}
		s.logger.Error("Failed to delete api key", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("repository error deleting api key %s: %w", id, err)
	}
	return nil
}

// PoolStats aggregates key counts per category. Both categories are always present.
func (s *APIKeyService) PoolStats(ctx context.Context) (*dto.PoolStatsResponse, error) {
	counts, err := s.repo.Counts(ctx)
	if err != nil {
		s.logger.Error("Failed to count api keys", zap.Error(err))
		return nil, fmt.Errorf("repository error counting api keys: %w", err)
	}

	byCategory := map[apikey.Category]*dto.CategoryStats{}
	order := []apikey.Category{apikey.CategoryPhoneOnly, apikey.CategoryEmailOnly}
	for _, c := range order {
		byCategory[c] = &dto.CategoryStats{Category: string(c), ByStatus: map[string]int64{}}
	}

	for _, pc := range counts {
		st, ok := byCategory[pc.Category]
		if !ok {
			continue
		}
		st.Total += pc.Count
		st.ByStatus[string(pc.Status)] += pc.Count
		if !pc.IsActive {
			st.Inactive += pc.Count
		}
		if pc.IsActive && pc.Status == apikey.StatusActive {
			st.Eligible += pc.Count
		}
	}

	resp := &dto.PoolStatsResponse{Categories: make([]dto.CategoryStats, 0, len(order))}
	for _, c := range order {
		resp.Categories = append(resp.Categories, *byCategory[c])
	}
	return resp, nil
}

func ToAPIKeyResponse(key *apikey.APIKey) *dto.APIKeyResponse {
	return &dto.APIKeyResponse{
		ID:               key.ID,
		Category:         string(key.Category),
		Status:           string(key.Status),
		KeySuffix:        key.Suffix(),
		CreditsRemaining: key.CreditsRemaining,
		IsActive:         key.IsActive,
		Eligible:         key.Eligible(),
		LastUsedAt:       key.LastUsedAt,
		CreatedAt:        key.CreatedAt,
	}
}
