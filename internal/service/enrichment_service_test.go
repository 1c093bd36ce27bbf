package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"github.com/makkenzo/prospect-enrichment-api/internal/provider/lusha"
	"github.com/makkenzo/prospect-enrichment-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type gatewayReply struct {
	status  int
	body    string
	credits *int
	err     error
	block   bool
}

// scriptedGateway replies per key value, consuming replies in order.
type scriptedGateway struct {
	mu      sync.Mutex
	replies map[string][]gatewayReply
	calls   []string
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{replies: make(map[string][]gatewayReply)}
}

func (g *scriptedGateway) on(keyValue string, replies ...gatewayReply) *scriptedGateway {
	g.replies[keyValue] = append(g.replies[keyValue], replies...)
	return g
}

func (g *scriptedGateway) Call(ctx context.Context, key *apikey.APIKey, _ enrichment.Query) (*lusha.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, key.Value)
	queue := g.replies[key.Value]
	if len(queue) == 0 {
		g.mu.Unlock()
		return nil, errors.New("unexpected call")
	}
	reply := queue[0]
	g.replies[key.Value] = queue[1:]
	g.mu.Unlock()

	if reply.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &lusha.Response{StatusCode: reply.status, Body: []byte(reply.body), CreditsRemaining: reply.credits}, nil
}

func (g *scriptedGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

const phoneBody = `{"data":{"firstName":"Ada","lastName":"Lovelace","phoneNumbers":[{"number":"+15550001"}],"company":{"name":"Analytical"}}}`

var linkedIn = enrichment.Request{
	Query:    enrichment.LinkedInQuery{URL: "https://linkedin.com/in/ada"},
	Category: apikey.CategoryPhoneOnly,
}

func addKey(t *testing.T, repo apikey.Repository, value string, credits *int) uuid.UUID {
	t.Helper()
	id, err := repo.Create(context.Background(), &apikey.APIKey{
		Value:            value,
		Category:         apikey.CategoryPhoneOnly,
		Status:           apikey.StatusActive,
		IsActive:         true,
		CreditsRemaining: credits,
	})
	require.NoError(t, err)
	return id
}

func findKey(t *testing.T, repo apikey.Repository, id uuid.UUID) *apikey.APIKey {
	t.Helper()
	k, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return k
}

func newService(repo apikey.Repository, gw ProviderGateway) *EnrichmentService {
	return NewEnrichmentService(repo, gw, nil, EnrichmentOptions{MaxAttempts: 3, AttemptTimeout: time.Second}, zap.NewNop())
}

func intPtr(n int) *int { return &n }

func TestEnrich_NoKeysSkipsGateway(t *testing.T) {
	repo := memstorage.NewAPIKeyRepository(nil)
	addEmail, err := repo.Create(context.Background(), &apikey.APIKey{Value: "email-key", Category: apikey.CategoryEmailOnly, Status: apikey.StatusActive, IsActive: true})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, addEmail)

	gw := newScriptedGateway()
	res, err := newService(repo, gw).Enrich(context.Background(), linkedIn)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, enrichment.KindNoKeysAvailable, res.ErrorKind)
	assert.Equal(t, 0, res.Attempts)
	assert.Empty(t, gw.Calls())
}

func TestEnrich_LastCreditExhaustsKey(t *testing.T) {
	repo := memstorage.NewAPIKeyRepository(nil)
	id := addKey(t, repo, "key-one-aaaa", intPtr(1))
	gw := newScriptedGateway().on("key-one-aaaa", gatewayReply{status: http.StatusOK, body: phoneBody, credits: intPtr(0)})
	svc := newService(repo, gw)

	res, err := svc.Enrich(context.Background(), linkedIn)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"+15550001"}, res.Phones)
	assert.Equal(t, "Ada Lovelace", res.FullName)
	require.NotNil(t, res.KeyID)
	assert.Equal(t, id, *res.KeyID)
	assert.Equal(t, "aaaa", res.KeySuffix)
	assert.Equal(t, intPtr(0), res.CreditsRemaining)

	k := findKey(t, repo, id)
	assert.Equal(t, apikey.StatusExhausted, k.Status)
	assert.False(t, k.IsActive)

	res, err = svc.Enrich(context.Background(), linkedIn)
	require.NoError(t, err)
	assert.Equal(t, enrichment.KindNoKeysAvailable, res.ErrorKind)
	assert.Len(t, gw.Calls(), 1)
}

func TestEnrich_InvalidKeyRotatesToNext(t *testing.T) {
	repo := memstorage.NewAPIKeyRepository(nil)
	x := addKey(t, repo, "key-x", nil)
	y := addKey(t, repo, "key-y", nil)
	// x was used most recently, so it is tried first.
	require.NoError(t, repo.RecordUsage(context.Background(), x, time.Now().Add(-time.Minute), nil))

	gw := newScriptedGateway().
		on("key-x", gatewayReply{status: http.StatusUnauthorized, body: `{"message":"bad key"}`}).
		on("key-y", gatewayReply{status: http.StatusOK, body: phoneBody})

	res, err := newService(repo, gw).Enrich(context.Background(), linkedIn)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	require.NotNil(t, res.KeyID)
	assert.Equal(t, y, *res.KeyID)
	assert.Equal(t, []string{"key-x", "key-y"}, gw.Calls())

	kx := findKey(t, repo, x)
	assert.Equal(t, apikey.StatusInvalid, kx.Status)
	assert.False(t, kx.IsActive)
	assert.True(t, findKey(t, repo, y).Eligible())
}

func TestEnrich_NotFoundIsTerminal(t *testing.T) {
	repo := memstorage.NewAPIKeyRepository(nil)
	id := addKey(t, repo, "key-one", nil)
	addKey(t, repo, "key-two", nil)
	gw := newScriptedGateway().on("key-one", gatewayReply{status: http.StatusNotFound})

	res, err := newService(repo, gw).Enrich(context.Background(), linkedIn)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, enrichment.KindNotFound, res.ErrorKind)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, gw.Calls(), 1)

	k := findKey(t, repo, id)
	assert.Equal(t, apikey.StatusActive, k.Status)
	assert.True(t, k.IsActive)
}

func TestEnrich_QuotaOnEveryKeyExceedsAttempts(t *testing.T) {
	repo := memstorage.NewAPIKeyRepository(nil)
	ids := []uuid.UUID{addKey(t, repo, "key-1", nil), addKey(t, repo, "key-2", nil), addKey(t, repo, "key-3", nil)}
	gw := newScriptedGateway().
		on("key-1", gatewayReply{status: http.StatusTooManyRequests}).
		on("key-2", gatewayReply{status: http.StatusTooManyRequests}).
		on("key-3", gatewayReply{status: http.StatusTooManyRequests})

	res, err := newService(repo, gw).Enrich(context.Background(), linkedIn)
	require.NoError(t, err)

	assert.Equal(t, enrichment.KindMaxAttemptsExceeded, res.ErrorKind)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, gw.Calls(), 3)
	for _, id := range ids {
		k := findKey(t, repo, id)
		assert.Equal(t, apikey.StatusExhausted, k.Status)
		assert.False(t, k.IsActive)
	}
}

func TestEnrich_AttemptBoundLeavesUntriedKeys(t *testing.T) {
	repo := memstorage.NewAPIKeyRepository(nil)
	for _, v := range []string{"key-1", "key-2", "key-3", "key-4"} {
		addKey(t, repo, v, nil)
	}
	gw := newScriptedGateway().
		on("key-1", gatewayReply{status: http.StatusPaymentRequired}).
		on("key-2", gatewayReply{status: http.StatusUnauthorized}).
		on("key-3", gatewayReply{status: http.StatusTooManyRequests})

	res, err := newService(repo, gw).Enrich(context.Background(), linkedIn)
	require.NoError(t, err)
	assert.Equal(t, enrichment.KindMaxAttemptsExceeded, res.ErrorKind)

	keys, err := repo.ListEligible(context.Background(), apikey.CategoryPhoneOnly)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "key-4", keys[0].Value)
}

func TestEnrich_QuotaThenEmptyPool(t *testing.T) {
	repo := memstorage.NewAPIKeyRepository(nil)
	addKey(t, repo, "key-1", nil)
	gw := newScriptedGateway().on("key-1", gatewayReply{status: http.StatusPaymentRequired})

	res, err := newService(repo, gw).Enrich(context.Background(), linkedIn)
	require.NoError(t, err)
	assert.Equal(t, enrichment.KindNoKeysAvailable, res.ErrorKind)
	assert.Equal(t, 1, res.Attempts)
}

func TestEnrich_TerminalOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		reply      gatewayReply
		wantKind   enrichment.ErrorKind
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "ok without reachability",
			reply:      gatewayReply{status: http.StatusOK, body: `{"data":{"firstName":"Ada"}}`},
			wantKind:   enrichment.KindNoData,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unexpected status",
			reply:      gatewayReply{status: http.StatusBadGateway, body: `{"message":"upstream down"}`},
			wantKind:   enrichment.KindProviderError,
			wantStatus: http.StatusBadGateway,
			wantMsg:    "upstream down",
		},
		{
			name:     "transport failure",
			reply:    gatewayReply{err: errors.New("connection reset")},
			wantKind: enrichment.KindTransportError,
			wantMsg:  "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memstorage.NewAPIKeyRepository(nil)
			id := addKey(t, repo, "key-one", nil)
			addKey(t, repo, "key-two", nil)
			gw := newScriptedGateway().on("key-one", tt.reply)

			res, err := newService(repo, gw).Enrich(context.Background(), linkedIn)
			require.NoError(t, err)

			assert.False(t, res.Success)
			assert.Equal(t, tt.wantKind, res.ErrorKind)
			assert.Equal(t, tt.wantStatus, res.ProviderStatus)
			assert.Equal(t, 1, res.Attempts)
			assert.Contains(t, res.Message, tt.wantMsg)
			assert.Len(t, gw.Calls(), 1)
			assert.True(t, findKey(t, repo, id).Eligible())
		})
	}
}

func TestEnrich_AttemptTimeoutIsTransportError(t *testing.T) {
	repo := memstorage.NewAPIKeyRepository(nil)
	addKey(t, repo, "key-one", nil)
	gw := newScriptedGateway().on("key-one", gatewayReply{block: true})
	svc := NewEnrichmentService(repo, gw, nil, EnrichmentOptions{AttemptTimeout: 20 * time.Millisecond}, zap.NewNop())

	res, err := svc.Enrich(context.Background(), linkedIn)
	require.NoError(t, err)
	assert.Equal(t, enrichment.KindTransportError, res.ErrorKind)
}

func TestEnrich_CallerCancellation(t *testing.T) {
	repo := memstorage.NewAPIKeyRepository(nil)
	addKey(t, repo, "key-one", nil)
	gw := newScriptedGateway()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newService(repo, gw).Enrich(ctx, linkedIn)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.Empty(t, gw.Calls())
}

func TestEnrich_InvalidRequest(t *testing.T) {
	svc := newService(memstorage.NewAPIKeyRepository(nil), newScriptedGateway())

	_, err := svc.Enrich(context.Background(), enrichment.Request{Query: enrichment.NameQuery{FirstName: "Ada"}, Category: apikey.CategoryPhoneOnly})
	assert.ErrorIs(t, err, ierr.ErrValidation)

	_, err = svc.Enrich(context.Background(), enrichment.Request{Query: enrichment.LinkedInQuery{URL: "x"}, Category: "SMS"})
	assert.ErrorIs(t, err, ierr.ErrValidation)
}

type unavailableRepo struct {
	*memstorage.APIKeyRepository
}

func (unavailableRepo) ListEligible(context.Context, apikey.Category) ([]*apikey.APIKey, error) {
	return nil, ierr.ErrStoreUnavailable
}

func TestEnrich_StoreUnavailable(t *testing.T) {
	gw := newScriptedGateway()
	svc := newService(unavailableRepo{memstorage.NewAPIKeyRepository(nil)}, gw)

	res, err := svc.Enrich(context.Background(), linkedIn)
	require.NoError(t, err)
	assert.Equal(t, enrichment.KindStoreUnavailable, res.ErrorKind)
	assert.Empty(t, gw.Calls())
}

func TestEnrich_ConcurrentCallersRetireEachKeyOnce(t *testing.T) {
	repo := memstorage.NewAPIKeyRepository(nil)
	addKey(t, repo, "key-1", nil)
	addKey(t, repo, "key-2", nil)
	gw := newScriptedGateway()
	for i := 0; i < 8; i++ {
		gw.on("key-1", gatewayReply{status: http.StatusTooManyRequests})
		gw.on("key-2", gatewayReply{status: http.StatusTooManyRequests})
	}
	svc := newService(repo, gw)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Enrich(context.Background(), linkedIn)
			assert.NoError(t, err)
			assert.Contains(t, []enrichment.ErrorKind{enrichment.KindNoKeysAvailable, enrichment.KindMaxAttemptsExceeded}, res.ErrorKind)
		}()
	}
	wg.Wait()

	keys, err := repo.ListEligible(context.Background(), apikey.CategoryPhoneOnly)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// deletingGateway removes the key from the pool before answering, as an admin
// delete racing an in-flight call would.
type deletingGateway struct {
	repo   apikey.Repository
	status int
	body   string
}

func (g *deletingGateway) Call(ctx context.Context, key *apikey.APIKey, _ enrichment.Query) (*lusha.Response, error) {
	if err := g.repo.Delete(ctx, key.ID); err != nil {
		return nil, err
	}
	return &lusha.Response{StatusCode: g.status, Body: []byte(g.body), CreditsRemaining: intPtr(7)}, nil
}

func TestEnrich_KeyDeletedDuringCall(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		success bool
		kind    enrichment.ErrorKind
	}{
		{name: "success", status: http.StatusOK, body: phoneBody, success: true},
		{name: "not found", status: http.StatusNotFound, body: `{}`, kind: enrichment.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memstorage.NewAPIKeyRepository(nil)
			id := addKey(t, repo, "key-gone-zzzz", nil)

			res, err := newService(repo, &deletingGateway{repo: repo, status: tt.status, body: tt.body}).Enrich(context.Background(), linkedIn)
			require.NoError(t, err)

			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.Equal(t, 1, res.Attempts)
			assert.Nil(t, res.KeyID)
			assert.Empty(t, res.KeySuffix)
			if tt.success {
				assert.Equal(t, []string{"+15550001"}, res.Phones)
			}

			_, err = repo.FindByID(context.Background(), id)
			assert.ErrorIs(t, err, apikey.ErrKeyNotFound)
		})
	}
}
