package memstorage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/prospect"
)

type ProspectRepository struct {
	mu        sync.RWMutex
	prospects map[uuid.UUID]*prospect.ContactRecord
}

func NewProspectRepository() *ProspectRepository {
	return &ProspectRepository{
		prospects: make(map[uuid.UUID]*prospect.ContactRecord),
	}
}

var _ prospect.Repository = (*ProspectRepository)(nil)

// Put inserts or replaces a prospect. It backs seeding in development mode and tests.
func (r *ProspectRepository) Put(rec *prospect.ContactRecord) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := cloneRecord(rec)
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.prospects[c.ID] = c
	return c.ID
}

func (r *ProspectRepository) FindByID(_ context.Context, id uuid.UUID) (*prospect.ContactRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.prospects[id]
	if !ok {
		return nil, prospect.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (r *ProspectRepository) UpdateContact(_ context.Context, rec *prospect.ContactRecord, keyID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.prospects[rec.ID]
	if !ok {
		return prospect.ErrNotFound
	}
	stored.FullName = rec.FullName
	stored.Company = rec.Company
	stored.CompanyURL = rec.CompanyURL
	stored.Title = rec.Title
	stored.City = rec.City
	stored.Email = rec.Email
	stored.Phones = append([]string(nil), rec.Phones...)
	if keyID != nil {
		id := *keyID
		stored.EnrichedKeyID = &id
	}
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ProspectRepository) unassignKey(keyID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.prospects {
		if rec.EnrichedKeyID != nil && *rec.EnrichedKeyID == keyID {
			rec.EnrichedKeyID = nil
		}
	}
}

func cloneRecord(rec *prospect.ContactRecord) *prospect.ContactRecord {
	c := *rec
	c.Phones = append([]string(nil), rec.Phones...)
	if rec.EnrichedKeyID != nil {
		id := *rec.EnrichedKeyID
		c.EnrichedKeyID = &id
	}
	return &c
}
