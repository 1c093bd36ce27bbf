// Package contact maps provider payloads onto canonical contact fields and
// merges fresh contact data into stored prospects.
package contact

import (
	"strings"

	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
	"github.com/tidwall/gjson"
)

// roots are the places a provider nests the person object, tried in order.
var roots = []string{
	"",
	"data",
	"contact",
	"person",
	"data.contact",
	"data.person",
	"contact.data",
	"data.data",
}

var (
	phoneListPaths   = []string{"phoneNumbers", "phone_numbers", "phones"}
	phoneScalarPaths = []string{"phoneNumber", "phone_number", "phone", "mobile"}
	phoneItemPaths   = []string{"internationalNumber", "international_number", "normalizedNumber", "normalized_number", "number", "localizedNumber", "localized_number", "phone", "value"}

	emailListPaths   = []string{"emailAddresses", "email_addresses", "emails"}
	emailScalarPaths = []string{"email", "emailAddress", "email_address"}
	emailItemPaths   = []string{"email", "address", "value"}

	fullNamePaths   = []string{"fullName", "full_name", "name.full", "name.fullName", "name.full_name", "name"}
	nameSplitPaths  = [][2]string{{"firstName", "lastName"}, {"first_name", "last_name"}, {"name.first", "name.last"}}
	companyPaths    = []string{"company.name", "companyName", "company_name", "company", "currentCompany.name", "organization.name"}
	companyURLPaths = []string{"company.website", "company.domain", "company.url", "company.fqdn", "companyUrl", "company_url", "companyWebsite", "company_website", "companyDomain", "company_domain"}
	titlePaths      = []string{"jobTitle.title", "job_title.title", "jobTitle", "job_title", "title", "position"}
	cityPaths       = []string{"location.city", "city", "address.city", "location.locality"}
)

// Normalize extracts contact fields from a provider success payload. It never
// fails: malformed or empty payloads yield an empty Contact.
func Normalize(body []byte) enrichment.Contact {
	var c enrichment.Contact
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return c
	}
	doc := gjson.ParseBytes(body)

	scopes := make([]gjson.Result, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			scopes = append(scopes, doc)
			continue
		}
		if v := doc.Get(r); v.IsObject() {
			scopes = append(scopes, v)
		}
	}

	c.Phones = firstList(scopes, phoneListPaths, phoneScalarPaths, phoneItemPaths, enrichment.MaxPhones)
	if emails := firstList(scopes, emailListPaths, emailScalarPaths, emailItemPaths, 1); len(emails) > 0 {
		c.Email = emails[0]
	}
	c.FullName = firstString(scopes, fullNamePaths)
	if c.FullName == "" {
		c.FullName = firstJoined(scopes, nameSplitPaths)
	}
	c.Company = firstString(scopes, companyPaths)
	c.CompanyURL = firstString(scopes, companyURLPaths)
	c.Title = firstString(scopes, titlePaths)
	c.City = firstString(scopes, cityPaths)

	return c
}

func scalar(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}

func firstString(scopes []gjson.Result, paths []string) string {
	for _, s := range scopes {
		for _, p := range paths {
			if v := scalar(s.Get(p)); v != "" {
				return v
			}
		}
	}
	return ""
}

func firstJoined(scopes []gjson.Result, pairs [][2]string) string {
	for _, s := range scopes {
		for _, pair := range pairs {
			first, last := scalar(s.Get(pair[0])), scalar(s.Get(pair[1]))
			if name := strings.TrimSpace(first + " " + last); name != "" {
				return name
			}
		}
	}
	return ""
}

// firstList returns up to max distinct values from the first rule that yields any.
func firstList(scopes []gjson.Result, listPaths, scalarPaths, itemPaths []string, max int) []string {
	for _, s := range scopes {
		for _, p := range listPaths {
			arr := s.Get(p)
			if !arr.IsArray() {
				continue
			}
			var values []string
			arr.ForEach(func(_, item gjson.Result) bool {
				if item.IsObject() {
					for _, ip := range itemPaths {
						if v := scalar(item.Get(ip)); v != "" {
							values = append(values, v)
							break
						}
					}
				} else if v := scalar(item); v != "" {
					values = append(values, v)
				}
				return true
			})
			if out := dedupe(values, max); len(out) > 0 {
				return out
			}
		}
		for _, p := range scalarPaths {
			if v := scalar(s.Get(p)); v != "" {
				return []string{v}
			}
		}
	}
	return nil
}

func dedupe(values []string, max int) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == max {
			break
		}
	}
	return out
}
