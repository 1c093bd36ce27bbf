package enrichment

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
)

// MaxPhones is the number of phone slots on a contact.
const MaxPhones = 4

// Query is a lookup query. It is either a LinkedInQuery or a NameQuery.
type Query interface {
	Validate() error
	// CacheKey is a stable, normalized identity of the query.
	CacheKey() string
	isQuery()
}

type LinkedInQuery struct {
	URL string
}

func (LinkedInQuery) isQuery() {}

func (q LinkedInQuery) Validate() error {
	if strings.TrimSpace(q.URL) == "" {
		return fmt.Errorf("linkedin url is required")
	}
	return nil
}

func (q LinkedInQuery) CacheKey() string {
	u := strings.ToLower(strings.TrimSpace(q.URL))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return "li:" + strings.TrimSuffix(u, "/")
}

type NameQuery struct {
	FirstName   string
	LastName    string
	CompanyName string
}

func (NameQuery) isQuery() {}

func (q NameQuery) Validate() error {
	if strings.TrimSpace(q.FirstName) == "" || strings.TrimSpace(q.LastName) == "" || strings.TrimSpace(q.CompanyName) == "" {
		return fmt.Errorf("first name, last name and company name are required")
	}
	return nil
}

func (q NameQuery) CacheKey() string {
	norm := func(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), " ")) }
	return "name:" + norm(q.FirstName) + "|" + norm(q.LastName) + "|" + norm(q.CompanyName)
}

type Request struct {
	Query    Query
	Category apikey.Category
}

func (r Request) Validate() error {
	if r.Query == nil {
		return fmt.Errorf("query is required")
	}
	if !r.Category.Valid() {
		return fmt.Errorf("unknown category %q", r.Category)
	}
	return r.Query.Validate()
}

// ErrorKind classifies a non-successful result.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindNoKeysAvailable     ErrorKind = "NO_KEYS_AVAILABLE"
	KindTransportError      ErrorKind = "TRANSPORT_ERROR"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindNoData              ErrorKind = "NO_DATA"
	KindMaxAttemptsExceeded ErrorKind = "MAX_ATTEMPTS_EXCEEDED"
	KindProviderError       ErrorKind = "PROVIDER_ERROR"
	KindStoreUnavailable    ErrorKind = "STORE_UNAVAILABLE"
)

// Definitive reports whether the kind is a final answer about the person
// rather than a failure of the lookup machinery.
func (k ErrorKind) Definitive() bool {
	return k == KindNone || k == KindNotFound || k == KindNoData
}

// Contact holds the canonical contact fields extracted from a provider payload.
type Contact struct {
	Phones     []string `json:"phones"`
	Email      string   `json:"email,omitempty"`
	FullName   string   `json:"full_name,omitempty"`
	Company    string   `json:"company,omitempty"`
	CompanyURL string   `json:"company_url,omitempty"`
	Title      string   `json:"title,omitempty"`
	City       string   `json:"city,omitempty"`
}

func (c Contact) HasReachability() bool {
	return len(c.Phones) > 0 || c.Email != ""
}

// Result is the transient output of one enrichment lookup.
type Result struct {
	Success bool `json:"success"`
	Contact
	KeyID            *uuid.UUID `json:"key_id,omitempty"`
	KeySuffix        string     `json:"key_suffix,omitempty"`
	CreditsRemaining *int       `json:"credits_remaining,omitempty"`
	Attempts         int        `json:"attempts"`
	Message          string     `json:"message"`
	ErrorKind        ErrorKind  `json:"error_kind,omitempty"`
	ProviderStatus   int        `json:"provider_status,omitempty"`
}
