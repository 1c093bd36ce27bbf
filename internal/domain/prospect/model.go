package prospect

import (
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
)

// ContactRecord is a prospect row that enrichment results are merged into.
type ContactRecord struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	FullName      string     `db:"full_name" json:"full_name"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	Company       string     `db:"company" json:"company"`
	CompanyURL    string     `db:"company_url" json:"company_url"`
	Title         string     `db:"title" json:"title"`
	City          string     `db:"city" json:"city"`
	Email         string     `db:"email" json:"email"`
	Phones        []string   `db:"-" json:"phones"`
	LinkedInURL   string     `db:"linkedin_url" json:"linkedin_url"`
	EnrichedKeyID *uuid.UUID `db:"enriched_key_id" json:"enriched_key_id,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// EnrichOutcome is the prospect after an enrichment attempt together with the
// lookup result. Record is unchanged unless Result.Success is set.
type EnrichOutcome struct {
	Record *ContactRecord     `json:"prospect"`
	Result *enrichment.Result `json:"result"`
}
