package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"github.com/makkenzo/prospect-enrichment-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSplitKeyLines(t *testing.T) {
	assert.Equal(t, []string{"abc", "def", "ghi"}, SplitKeyLines("abc\r\n\n  def  \n\t\nghi"))
	assert.Empty(t, SplitKeyLines(" \n \n"))
}

func TestAPIKeyService_BulkAdd(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewAPIKeyRepository(nil)
	svc := NewAPIKeyService(repo, zap.NewNop())

	_, err := repo.Create(ctx, &apikey.APIKey{Value: "existing-key-0001", Category: apikey.CategoryPhoneOnly, Status: apikey.StatusActive, IsActive: true})
	require.NoError(t, err)

	res, err := svc.BulkAdd(ctx, "new-key-0002\n\nexisting-key-0001\nnew-key-0003\nnew-key-0002\n", apikey.CategoryPhoneOnly)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Added)
	assert.Equal(t, []string{
		"existing...: key already exists",
		"new-key-...: key already exists",
	}, res.Errors)

	keys, err := repo.ListEligible(ctx, apikey.CategoryPhoneOnly)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestAPIKeyService_BulkAddValidation(t *testing.T) {
	svc := NewAPIKeyService(memstorage.NewAPIKeyRepository(nil), zap.NewNop())

	_, err := svc.BulkAdd(context.Background(), "key", "SMS")
	assert.ErrorIs(t, err, ierr.ErrValidation)

	_, err = svc.BulkAdd(context.Background(), "\n  \n", apikey.CategoryEmailOnly)
	assert.ErrorIs(t, err, ierr.ErrValidation)
}

func TestAPIKeyService_SetActiveAndList(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewAPIKeyRepository(nil)
	svc := NewAPIKeyService(repo, zap.NewNop())

	id, err := repo.Create(ctx, &apikey.APIKey{Value: "secret-abcd", Category: apikey.CategoryEmailOnly, Status: apikey.StatusActive, IsActive: true})
	require.NoError(t, err)
	require.NoError(t, repo.MarkDead(ctx, id, apikey.StatusInvalid))

	resp, err := svc.SetActive(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, resp.Eligible)
	assert.Equal(t, "active", resp.Status)
	assert.Equal(t, "abcd", resp.KeySuffix)

	category := apikey.CategoryEmailOnly
	list, err := svc.List(ctx, apikey.ListFilter{Category: &category})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	_, err = svc.SetActive(ctx, uuid.New(), false)
	assert.ErrorIs(t, err, ierr.ErrNotFound)
}

func TestAPIKeyService_Delete(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewAPIKeyRepository(nil)
	svc := NewAPIKeyService(repo, zap.NewNop())

	id, err := repo.Create(ctx, &apikey.APIKey{Value: "secret", Category: apikey.CategoryEmailOnly, Status: apikey.StatusActive, IsActive: true})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, id))
	assert.ErrorIs(t, svc.Delete(ctx, id), ierr.ErrNotFound)
}

func TestAPIKeyService_PoolStats(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewAPIKeyRepository(nil)
	svc := NewAPIKeyService(repo, zap.NewNop())

	_, err := svc.BulkAdd(ctx, "p1\np2\np3", apikey.CategoryPhoneOnly)
	require.NoError(t, err)
	keys, err := repo.ListEligible(ctx, apikey.CategoryPhoneOnly)
	require.NoError(t, err)
	require.NoError(t, repo.MarkDead(ctx, keys[0].ID, apikey.StatusExhausted))
	require.NoError(t, repo.SetActive(ctx, keys[1].ID, false))
	require.NoError(t, repo.RecordUsage(ctx, keys[2].ID, time.Now(), nil))

	stats, err := svc.PoolStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Categories, 2)

	phone := stats.Categories[0]
	assert.Equal(t, "PHONE_ONLY", phone.Category)
	assert.Equal(t, int64(3), phone.Total)
	assert.Equal(t, int64(1), phone.Eligible)
	assert.Equal(t, int64(2), phone.Inactive)
	assert.Equal(t, map[string]int64{"active": 2, "exhausted": 1}, phone.ByStatus)

	email := stats.Categories[1]
	assert.Equal(t, "EMAIL_ONLY", email.Category)
	assert.Zero(t, email.Total)
}
