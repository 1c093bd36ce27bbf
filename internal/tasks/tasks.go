package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
)

const (
	TypeProspectEnrich   = "prospect:enrich"
	TypeAPIKeyPoolReport = "apikey:pool:report"

	QueueDefault = "default"
	QueueLow     = "low"
)

type EnrichProspectPayload struct {
	ProspectID uuid.UUID       `json:"prospect_id"`
	Category   apikey.Category `json:"category"`
}

// NewEnrichProspectTask builds a task that is unique per prospect and
// category for ten minutes.
func NewEnrichProspectTask(id uuid.UUID, category apikey.Category, opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(EnrichProspectPayload{ProspectID: id, Category: category})
	if err != nil {
		return nil, err
	}

	allOpts := append([]asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.Unique(10 * time.Minute),
	}, opts...)

	return asynq.NewTask(TypeProspectEnrich, payloadBytes, allOpts...), nil
}

type PoolReportPayload struct{}

func NewPoolReportTask(opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(PoolReportPayload{})
	if err != nil {
		return nil, err
	}

	allOpts := append([]asynq.Option{
		asynq.Queue(QueueLow),
		asynq.Unique(time.Minute),
	}, opts...)

	return asynq.NewTask(TypeAPIKeyPoolReport, payloadBytes, allOpts...), nil
}
