package memstorage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
)

type storedKey struct {
	apikey.APIKey
	seq int64
}

// APIKeyRepository is an in-memory key pool. Reads return copies, so callers
// never share state with the store.
type APIKeyRepository struct {
	mu        sync.RWMutex
	keys      map[uuid.UUID]*storedKey
	seq       int64
	prospects *ProspectRepository
	now       func() time.Time
}

// NewAPIKeyRepository creates an empty pool. prospects may be nil; when set,
// Delete unassigns prospects enriched with the removed key.
func NewAPIKeyRepository(prospects *ProspectRepository) *APIKeyRepository {
	return &APIKeyRepository{
		keys:      make(map[uuid.UUID]*storedKey),
		prospects: prospects,
		now:       time.Now,
	}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func (r *APIKeyRepository) ListEligible(_ context.Context, category apikey.Category) ([]*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*storedKey, 0)
	for _, k := range r.keys {
		if k.Category == category && k.Eligible() {
			matched = append(matched, k)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch {
		case a.LastUsedAt != nil && b.LastUsedAt == nil:
			return true
		case a.LastUsedAt == nil && b.LastUsedAt != nil:
			return false
		case a.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt):
			return a.LastUsedAt.After(*b.LastUsedAt)
		}
		return a.seq < b.seq
	})

	out := make([]*apikey.APIKey, len(matched))
	for i, k := range matched {
		out[i] = clone(&k.APIKey)
	}
	return out, nil
}

func (r *APIKeyRepository) MarkDead(_ context.Context, id uuid.UUID, status apikey.Status) error {
	if !apikey.IsTerminal(status) {
		return fmt.Errorf("%w: %s", apikey.ErrInvalidStatus, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[id]
	if !ok {
		return apikey.ErrKeyNotFound
	}
	k.Status = status
	k.IsActive = false
	return nil
}

func (r *APIKeyRepository) RecordUsage(_ context.Context, id uuid.UUID, usedAt time.Time, credits *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[id]
	if !ok {
		return apikey.ErrKeyNotFound
	}
	t := usedAt
	k.LastUsedAt = &t
	if credits != nil {
		c := *credits
		if c < 0 {
			c = 0
		}
		k.CreditsRemaining = &c
		if c == 0 {
			k.Status = apikey.StatusExhausted
			k.IsActive = false
		}
	}
	return nil
}

func (r *APIKeyRepository) Create(_ context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.keys {
		if k.Value == key.Value {
			return uuid.Nil, apikey.ErrDuplicateKey
		}
	}

	stored := &storedKey{APIKey: *clone(key)}
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now().UTC()
	}
	r.seq++
	stored.seq = r.seq
	r.keys[stored.ID] = stored
	return stored.ID, nil
}

func (r *APIKeyRepository) FindByID(_ context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.keys[id]
	if !ok {
		return nil, apikey.ErrKeyNotFound
	}
	return clone(&k.APIKey), nil
}

func (r *APIKeyRepository) List(_ context.Context, filter apikey.ListFilter) ([]*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*storedKey, 0, len(r.keys))
	for _, k := range r.keys {
		if filter.Category != nil && k.Category != *filter.Category {
			continue
		}
		if filter.Status != nil && k.Status != *filter.Status {
			continue
		}
		matched = append(matched, k)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Category != matched[j].Category {
			return matched[i].Category < matched[j].Category
		}
		return matched[i].seq > matched[j].seq
	})

	out := make([]*apikey.APIKey, len(matched))
	for i, k := range matched {
		out[i] = clone(&k.APIKey)
	}
	return out, nil
}

func (r *APIKeyRepository) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[id]
	if !ok {
		return apikey.ErrKeyNotFound
	}
	k.IsActive = active
	if active {
		k.Status = apikey.StatusActive
		k.CreditsRemaining = nil
	}
	return nil
}

func (r *APIKeyRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[id]; !ok {
		return apikey.ErrKeyNotFound
	}
	if r.prospects != nil {
		r.prospects.unassignKey(id)
	}
	delete(r.keys, id)
	return nil
}

func (r *APIKeyRepository) Counts(_ context.Context) ([]apikey.PoolCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type bucket struct {
		category apikey.Category
		status   apikey.Status
		active   bool
	}
	tally := make(map[bucket]int64)
	for _, k := range r.keys {
		tally[bucket{k.Category, k.Status, k.IsActive}]++
	}

	counts := make([]apikey.PoolCount, 0, len(tally))
	for b, n := range tally {
		counts = append(counts, apikey.PoolCount{Category: b.category, Status: b.status, IsActive: b.active, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Category != counts[j].Category {
			return counts[i].Category < counts[j].Category
		}
		if counts[i].Status != counts[j].Status {
			return counts[i].Status < counts[j].Status
		}
		return !counts[i].IsActive && counts[j].IsActive
	})
	return counts, nil
}

func clone(k *apikey.APIKey) *apikey.APIKey {
	c := *k
	if k.CreditsRemaining != nil {
		v := *k.CreditsRemaining
		c.CreditsRemaining = &v
	}
	if k.LastUsedAt != nil {
		v := *k.LastUsedAt
		c.LastUsedAt = &v
	}
	return &c
}
