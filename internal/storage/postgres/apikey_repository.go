package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"go.uber.org/zap"
)

const apiKeyColumns = `id, value, category, status, credits_remaining, is_active, last_used_at, created_at`

type APIKeyRepository struct {
	db     DB
	logger *zap.Logger
}

func NewAPIKeyRepository(db DB, logger *zap.Logger) *APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger.Named("APIKeyRepository"),
	}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func (r *APIKeyRepository) ListEligible(ctx context.Context, category apikey.Category) ([]*apikey.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM provider_api_keys
		WHERE category = $1 AND is_active = TRUE AND status = $2
		ORDER BY last_used_at DESC NULLS LAST, created_at ASC
	`
	rows, err := r.db.Query(ctx, query, category, apikey.StatusActive)
	if err != nil {
		r.logger.Error("Failed to query eligible keys", zap.String("category", string(category)), zap.Error(err))
		return nil, fmt.Errorf("%w: list eligible keys: %w", ierr.ErrStoreUnavailable, err)
	}
	keys, err := r.collect(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: list eligible keys: %w", ierr.ErrStoreUnavailable, err)
	}
	return keys, nil
}

func (r *APIKeyRepository) MarkDead(ctx context.Context, id uuid.UUID, status apikey.Status) error {
	if !apikey.IsTerminal(status) {
		return fmt.Errorf("%w: %s", apikey.ErrInvalidStatus, status)
	}
	query := `UPDATE provider_api_keys SET status = $1, is_active = FALSE WHERE id = $2`
	cmdTag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		r.logger.Error("Failed to mark key dead", zap.String("id", id.String()), zap.String("status", string(status)), zap.Error(err))
		return fmt.Errorf("%w: mark key dead: %w", ierr.ErrStoreUnavailable, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) RecordUsage(ctx context.Context, id uuid.UUID, usedAt time.Time, credits *int) error {
	var (
		cmdTag pgconn.CommandTag
		err    error
	)
	if credits == nil {
		cmdTag, err = r.db.Exec(ctx, `UPDATE provider_api_keys SET last_used_at = $1 WHERE id = $2`, usedAt, id)
	} else {
		query := `
			UPDATE provider_api_keys SET
				last_used_at = $1,
				credits_remaining = $2,
				status = CASE WHEN $2 <= 0 THEN $3 ELSE status END,
				is_active = CASE WHEN $2 <= 0 THEN FALSE ELSE is_active END
			WHERE id = $4
		`
		cmdTag, err = r.db.Exec(ctx, query, usedAt, *credits, apikey.StatusExhausted, id)
	}
	if err != nil {
		r.logger.Error("Failed to record key usage", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("%w: record key usage: %w", ierr.ErrStoreUnavailable, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("Key not found when recording usage", zap.String("id", id.String()))
		return apikey.ErrKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	query := `
		INSERT INTO provider_api_keys (value, category, status, credits_remaining, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var insertedID uuid.UUID
	err := r.db.QueryRow(ctx, query,
		key.Value,
		key.Category,
		key.Status,
		key.CreditsRemaining,
		key.IsActive,
	).Scan(&insertedID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			r.logger.Warn("Failed to create provider key due to unique constraint violation",
				zap.String("constraint", pgErr.ConstraintName),
				zap.String("key_suffix", key.Suffix()),
			)
			return uuid.Nil, fmt.Errorf("%w (%s)", apikey.ErrDuplicateKey, pgErr.ConstraintName)
		}
		r.logger.Error("Failed to create provider key in database", zap.Error(err))
		return uuid.Nil, fmt.Errorf("db error creating provider key: %w", err)
	}

	r.logger.Debug("Provider key created", zap.String("id", insertedID.String()), zap.String("key_suffix", key.Suffix()))
	return insertedID, nil
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM provider_api_keys WHERE id = $1`
	key, err := scanAPIKey(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apikey.ErrKeyNotFound
		}
		r.logger.Error("Failed to find provider key", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding provider key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) List(ctx context.Context, filter apikey.ListFilter) ([]*apikey.APIKey, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != nil {
		args = append(args, *filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + apiKeyColumns + ` FROM provider_api_keys`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY category, created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query provider keys", zap.Error(err))
		return nil, fmt.Errorf("db error listing provider keys: %w", err)
	}
	return r.collect(rows)
}

func (r *APIKeyRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	var query string
	if active {
		query = `UPDATE provider_api_keys SET is_active = TRUE, status = $2, credits_remaining = NULL WHERE id = $1`
	} else {
		query = `UPDATE provider_api_keys SET is_active = FALSE WHERE id = $1`
	}

	var (
		cmdTag pgconn.CommandTag
		err    error
	)
	if active {
		cmdTag, err = r.db.Exec(ctx, query, id, apikey.StatusActive)
	} else {
		cmdTag, err = r.db.Exec(ctx, query, id)
	}
	if err != nil {
		r.logger.Error("Failed to toggle provider key", zap.String("id", id.String()), zap.Bool("active", active), zap.Error(err))
		return fmt.Errorf("%w: %v", ierr.ErrUpdateFailed, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db error starting delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	unassigned, err := tx.Exec(ctx, `UPDATE prospects SET enriched_key_id = NULL WHERE enriched_key_id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to unassign prospects from key", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error unassigning prospects: %w", err)
	}

	cmdTag, err := tx.Exec(ctx, `DELETE FROM provider_api_keys WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete provider key", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error deleting provider key: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrKeyNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("db error committing key delete: %w", err)
	}

	r.logger.Info("Provider key deleted",
		zap.String("id", id.String()),
		zap.Int64("unassigned_prospects", unassigned.RowsAffected()),
	)
	return nil
}

func (r *APIKeyRepository) Counts(ctx context.Context) ([]apikey.PoolCount, error) {
	query := `
		SELECT category, status, is_active, COUNT(*)
		FROM provider_api_keys
		GROUP BY category, status, is_active
		ORDER BY category, status, is_active
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to count provider keys", zap.Error(err))
		return nil, fmt.Errorf("%w: count keys: %w", ierr.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	counts := make([]apikey.PoolCount, 0)
	for rows.Next() {
		var pc apikey.PoolCount
		if err := rows.Scan(&pc.Category, &pc.Status, &pc.IsActive, &pc.Count); err != nil {
			return nil, fmt.Errorf("database scan error counting keys: %w", err)
		}
		counts = append(counts, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database iteration error counting keys: %w", err)
	}
	return counts, nil
}

func (r *APIKeyRepository) collect(rows pgx.Rows) ([]*apikey.APIKey, error) {
	defer rows.Close()

	keys := make([]*apikey.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			r.logger.Error("Failed to scan provider key row", zap.Error(err))
			return nil, fmt.Errorf("database scan error: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating provider key rows", zap.Error(err))
		return nil, fmt.Errorf("database iteration error: %w", err)
	}
	return keys, nil
}

func scanAPIKey(row pgx.Row) (*apikey.APIKey, error) {
	var key apikey.APIKey
	err := row.Scan(
		&key.ID,
		&key.Value,
		&key.Category,
		&key.Status,
		&key.CreditsRemaining,
		&key.IsActive,
		&key.LastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}
