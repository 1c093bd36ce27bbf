package dto

// EnrichRequest carries exactly one query shape: linkedin_url, or all of
// first_name, last_name and company_name.
type EnrichRequest struct {
	Category    string `json:"category" binding:"required,oneof=PHONE_ONLY EMAIL_ONLY"`
	LinkedInURL string `json:"linkedin_url" binding:"omitempty,max=512"`
	FirstName   string `json:"first_name" binding:"omitempty,max=256"`
	LastName    string `json:"last_name" binding:"omitempty,max=256"`
	CompanyName string `json:"company_name" binding:"omitempty,max=256"`
}
