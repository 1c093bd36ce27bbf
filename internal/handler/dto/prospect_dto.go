package dto

type EnrichProspectRequest struct {
	Category string `json:"category" binding:"required,oneof=PHONE_ONLY EMAIL_ONLY"`
}

type BulkEnrichProspectsRequest struct {
	Category    string   `json:"category" binding:"required,oneof=PHONE_ONLY EMAIL_ONLY"`
	ProspectIDs []string `json:"prospect_ids" binding:"required,min=1,max=1000,dive,uuid"`
}

type BulkEnqueueResponse struct {
	Enqueued int      `json:"enqueued"`
	Skipped  []string `json:"skipped"`
}
