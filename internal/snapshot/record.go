package snapshot

import (
	"time"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// OutputRecord is the raw evaluator result kept next to a request snapshot
type OutputRecord struct {
	RunID       string                  `json:"run_id"`
	InstanceID  string                  `json:"instance_id"`
	Status      contracts.OutcomeStatus `json:"status"`
	RawOutput   string                  `json:"raw_output,omitempty"`
	ErrorDetail string                  `json:"error_detail,omitempty"`
	DurationMs  int64                   `json:"duration_ms"`
	RecordedAt  time.Time               `json:"recorded_at"`
}

// NewOutputRecord builds the record of one outcome
func NewOutputRecord(runID string, outcome *contracts.EvaluationOutcome) *OutputRecord {
	return &OutputRecord{
		RunID:       runID,
		InstanceID:  outcome.InstanceID,
		Status:      outcome.Status,
		RawOutput:   outcome.RawOutput,
		ErrorDetail: outcome.ErrorDetail,
		DurationMs:  outcome.Duration.Milliseconds(),
		RecordedAt:  time.Now().UTC(),
	}
}
