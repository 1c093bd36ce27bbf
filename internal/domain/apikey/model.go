package apikey

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category partitions the key pool by lookup purpose. Keys are never shared
// across categories.
type Category string

const (
	CategoryPhoneOnly Category = "PHONE_ONLY"
	CategoryEmailOnly Category = "EMAIL_ONLY"
)

func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToUpper(strings.TrimSpace(s))); c {
	case CategoryPhoneOnly, CategoryEmailOnly:
		return c, nil
	default:
		return "", fmt.Errorf("unknown key category %q", s)
	}
}

func (c Category) Valid() bool {
	return c == CategoryPhoneOnly || c == CategoryEmailOnly
}

type Status string

const (
	StatusActive    Status = "active"
	StatusExhausted Status = "exhausted"
	StatusInvalid   Status = "invalid"
	StatusSuspended Status = "suspended"
)

// APIKey is a provider credential in the enrichment key pool.
type APIKey struct {
	ID       uuid.UUID `db:"id"`
	Value    string    `db:"value"`
	Category Category  `db:"category"`
	Status   Status    `db:"status"`
	// CreditsRemaining is nil until the provider has reported a balance.
	CreditsRemaining *int       `db:"credits_remaining"`
	IsActive         bool       `db:"is_active"`
	LastUsedAt       *time.Time `db:"last_used_at"`
	CreatedAt        time.Time  `db:"created_at"`
}

// Eligible reports whether the key may be handed out for a lookup.
func (k *APIKey) Eligible() bool {
	return k.IsActive && k.Status == StatusActive
}

// Suffix is the last four characters of the secret, safe for logs and responses.
func (k *APIKey) Suffix() string {
	return KeySuffix(k.Value)
}

func KeySuffix(value string) string {
	if len(value) > 4 {
		return value[len(value)-4:]
	}
	return value
}

// Preview truncates a raw key for error messages.
func Preview(value string) string {
	const n = 8
	if len(value) <= n {
		return value
	}
	return value[:n] + "..."
}

// BulkAddResult summarizes a bulk import. Errors are keyed by key preview.
type BulkAddResult struct {
	Added  int      `json:"added"`
	Errors []string `json:"errors"`
}

// PoolCount is one row of pool statistics.
type PoolCount struct {
	Category Category `json:"category"`
	Status   Status   `json:"status"`
	IsActive bool     `json:"is_active"`
	Count    int64    `json:"count"`
}

type ListFilter struct {
	Category *Category
	Status   *Status
}
