package dto

import (
	"time"

	"github.com/google/uuid"
)

type BulkAddAPIKeysRequest struct {
	Category string `json:"category" binding:"required,oneof=PHONE_ONLY EMAIL_ONLY"`
	// Keys is pasted text, one key per line.
	Keys string `json:"keys" binding:"required"`
}

type SetAPIKeyActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// APIKeyResponse never carries the secret, only its last four characters.
type APIKeyResponse struct {
	ID               uuid.UUID  `json:"id"`
	Category         string     `json:"category"`
	Status           string     `json:"status"`
	KeySuffix        string     `json:"key_suffix"`
	CreditsRemaining *int       `json:"credits_remaining"`
	IsActive         bool       `json:"is_active"`
	Eligible         bool       `json:"eligible"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type CategoryStats struct {
	Category string           `json:"category"`
	Total    int64            `json:"total"`
	Eligible int64            `json:"eligible"`
	Inactive int64            `json:"inactive"`
	ByStatus map[string]int64 `json:"by_status"`
}

type PoolStatsResponse struct {
	Categories []CategoryStats `json:"categories"`
}
