package apikey

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrKeyNotFound   = errors.New("provider api key not found")
	ErrInvalidStatus = errors.New("status is not a terminal key status")
	ErrDuplicateKey  = errors.New("provider api key already exists")
)

// Repository is the durable key pool. Every mutation is scoped to one key row.
type Repository interface {
	// ListEligible returns active keys of the category, most recently used
	// first, never-used keys last.
	ListEligible(ctx context.Context, category Category) ([]*APIKey, error)
	// MarkDead sets a terminal status and deactivates the key. Idempotent.
	MarkDead(ctx context.Context, id uuid.UUID, status Status) error
	// RecordUsage stamps last_used_at and, when credits is non-nil, stores it.
	// A zero balance exhausts the key in the same write.
	RecordUsage(ctx context.Context, id uuid.UUID, usedAt time.Time, credits *int) error
	Create(ctx context.Context, key *APIKey) (uuid.UUID, error)
	FindByID(ctx context.Context, id uuid.UUID) (*APIKey, error)
	List(ctx context.Context, filter ListFilter) ([]*APIKey, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// Delete removes the key and unassigns every prospect enriched with it.
	Delete(ctx context.Context, id uuid.UUID) error
	Counts(ctx context.Context) ([]PoolCount, error)
}

// IsTerminal reports whether s is a status MarkDead accepts.
func IsTerminal(s Status) bool {
	return s == StatusExhausted || s == StatusInvalid
}
