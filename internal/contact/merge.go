package contact

import (
	"strings"

	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/prospect"
)

// Merge folds freshly retrieved contact data into rec. Fresh values win,
// absent fresh values never clear a stored field.
func Merge(rec prospect.ContactRecord, fresh enrichment.Contact) prospect.ContactRecord {
	out := rec
	out.Phones = MergePhones(fresh.Phones, rec.Phones)
	out.Email = prefer(fresh.Email, rec.Email)
	out.FullName = prefer(fresh.FullName, rec.FullName)
	out.Company = prefer(fresh.Company, rec.Company)
	out.CompanyURL = prefer(fresh.CompanyURL, rec.CompanyURL)
	out.Title = prefer(fresh.Title, rec.Title)
	out.City = prefer(fresh.City, rec.City)
	return out
}

// MergePhones puts fresh numbers first, then stored numbers not already
// present, capped at enrichment.MaxPhones. Without fresh numbers the stored
// slots are returned untouched.
func MergePhones(fresh, existing []string) []string {
	freshClean := dedupe(fresh, enrichment.MaxPhones)
	if len(freshClean) == 0 {
		if existing == nil {
			return nil
		}
		return append([]string(nil), existing...)
	}
	combined := make([]string, 0, len(freshClean)+len(existing))
	combined = append(combined, freshClean...)
	combined = append(combined, existing...)
	return dedupe(combined, enrichment.MaxPhones)
}

func prefer(fresh, existing string) string {
	if v := strings.TrimSpace(fresh); v != "" {
		return v
	}
	return existing
}
