package prospect

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("prospect not found")

type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ContactRecord, error)
	// UpdateContact persists the contact fields of rec and the key that produced them.
	UpdateContact(ctx context.Context, rec *ContactRecord, keyID *uuid.UUID) error
}
