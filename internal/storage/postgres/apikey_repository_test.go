package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockAPIKeyRepository(t *testing.T) (*APIKeyRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewAPIKeyRepository(mock, zap.NewNop()), mock
}

var keyRowColumns = []string{"id", "value", "category", "status", "credits_remaining", "is_active", "last_used_at", "created_at"}

func intPtr(v int) *int { return &v }

func TestAPIKeyRepository_ListEligible(t *testing.T) {
	repo, mock := newMockAPIKeyRepository(t)

	recent := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	created := recent.Add(-48 * time.Hour)
	id1, id2 := uuid.New(), uuid.New()

	rows := mock.NewRows(keyRowColumns).
		AddRow(id1, "secret-one", apikey.CategoryPhoneOnly, apikey.StatusActive, intPtr(10), true, &recent, created).
		AddRow(id2, "secret-two", apikey.CategoryPhoneOnly, apikey.StatusActive, (*int)(nil), true, (*time.Time)(nil), created)

	mock.ExpectQuery(`FROM provider_api_keys\s+WHERE category = \$1 AND is_active = TRUE AND status = \$2\s+ORDER BY last_used_at DESC NULLS LAST`).
		WithArgs(apikey.CategoryPhoneOnly, apikey.StatusActive).
		WillReturnRows(rows)

	keys, err := repo.ListEligible(context.Background(), apikey.CategoryPhoneOnly)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, id1, keys[0].ID)
	assert.Equal(t, 10, *keys[0].CreditsRemaining)
	assert.Nil(t, keys[1].LastUsedAt)
	assert.Nil(t, keys[1].CreditsRemaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_ListEligible_StoreUnavailable(t *testing.T) {
	repo, mock := newMockAPIKeyRepository(t)

	mock.ExpectQuery(`FROM provider_api_keys`).
		WithArgs(apikey.CategoryEmailOnly, apikey.StatusActive).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.ListEligible(context.Background(), apikey.CategoryEmailOnly)
	require.Error(t, err)
	assert.ErrorIs(t, err, ierr.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_MarkDead(t *testing.T) {
	repo, mock := newMockAPIKeyRepository(t)
	id := uuid.New()

	for i := 0; i < 2; i++ {
		mock.ExpectExec(`UPDATE provider_api_keys SET status = \$1, is_active = FALSE WHERE id = \$2`).
			WithArgs(apikey.StatusInvalid, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}

	require.NoError(t, repo.MarkDead(context.Background(), id, apikey.StatusInvalid))
	require.NoError(t, repo.MarkDead(context.Background(), id, apikey.StatusInvalid))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_MarkDead_RejectsActive(t *testing.T) {
	repo, mock := newMockAPIKeyRepository(t)

	err := repo.MarkDead(context.Background(), uuid.New(), apikey.StatusActive)
	assert.ErrorIs(t, err, apikey.ErrInvalidStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_RecordUsage(t *testing.T) {
	usedAt := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	t.Run("without credits", func(t *testing.T) {
		repo, mock := newMockAPIKeyRepository(t)
		id := uuid.New()
		mock.ExpectExec(`UPDATE provider_api_keys SET last_used_at = \$1 WHERE id = \$2`).
			WithArgs(usedAt, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.RecordUsage(context.Background(), id, usedAt, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero credits exhausts in the same write", func(t *testing.T) {
		repo, mock := newMockAPIKeyRepository(t)
		id := uuid.New()
		mock.ExpectExec(`credits_remaining = \$2,\s+status = CASE WHEN \$2 <= 0 THEN \$3 ELSE status END,\s+is_active = CASE WHEN \$2 <= 0 THEN FALSE`).
			WithArgs(usedAt, 0, apikey.StatusExhausted, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.RecordUsage(context.Background(), id, usedAt, intPtr(0)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing key", func(t *testing.T) {
		repo, mock := newMockAPIKeyRepository(t)
		id := uuid.New()
		mock.ExpectExec(`UPDATE provider_api_keys SET last_used_at`).
			WithArgs(usedAt, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.RecordUsage(context.Background(), id, usedAt, nil)
		assert.ErrorIs(t, err, apikey.ErrKeyNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAPIKeyRepository_Create_Duplicate(t *testing.T) {
	repo, mock := newMockAPIKeyRepository(t)
	key := &apikey.APIKey{Value: "dup-secret", Category: apikey.CategoryEmailOnly, Status: apikey.StatusActive, IsActive: true}

	mock.ExpectQuery(`INSERT INTO provider_api_keys`).
		WithArgs(key.Value, key.Category, key.Status, key.CreditsRemaining, key.IsActive).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "provider_api_keys_value_key"})

	_, err := repo.Create(context.Background(), key)
	require.Error(t, err)
	assert.ErrorIs(t, err, apikey.ErrDuplicateKey)
	assert.Contains(t, err.Error(), "provider_api_keys_value_key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_Create(t *testing.T) {
	repo, mock := newMockAPIKeyRepository(t)
	key := &apikey.APIKey{Value: "fresh-secret", Category: apikey.CategoryPhoneOnly, Status: apikey.StatusActive, IsActive: true}
	newID := uuid.New()

	mock.ExpectQuery(`INSERT INTO provider_api_keys`).
		WithArgs(key.Value, key.Category, key.Status, key.CreditsRemaining, key.IsActive).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(newID))

	id, err := repo.Create(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, newID, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_SetActive(t *testing.T) {
	repo, mock := newMockAPIKeyRepository(t)
	id := uuid.New()

	mock.ExpectExec(`SET is_active = TRUE, status = \$2, credits_remaining = NULL WHERE id = \$1`).
		WithArgs(id, apikey.StatusActive).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET is_active = FALSE WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.SetActive(context.Background(), id, true))
	assert.ErrorIs(t, repo.SetActive(context.Background(), id, false), apikey.ErrKeyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_Delete_UnassignsProspects(t *testing.T) {
	repo, mock := newMockAPIKeyRepository(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE prospects SET enriched_key_id = NULL WHERE enriched_key_id = \$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec(`DELETE FROM provider_api_keys WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_Delete_NotFoundRollsBack(t *testing.T) {
	repo, mock := newMockAPIKeyRepository(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE prospects SET enriched_key_id = NULL`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`DELETE FROM provider_api_keys`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), id)
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_Counts(t *testing.T) {
	repo, mock := newMockAPIKeyRepository(t)

	rows := mock.NewRows([]string{"category", "status", "is_active", "count"}).
		AddRow(apikey.CategoryPhoneOnly, apikey.StatusActive, true, int64(4)).
		AddRow(apikey.CategoryPhoneOnly, apikey.StatusExhausted, false, int64(2))
	mock.ExpectQuery(`GROUP BY category, status, is_active`).WillReturnRows(rows)

	counts, err := repo.Counts(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, int64(4), counts[0].Count)
	assert.Equal(t, apikey.StatusExhausted, counts[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
