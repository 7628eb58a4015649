package contracts

import "time"

// OutcomeStatus is the result kind of a single instance evaluation
type OutcomeStatus string

const (
	StatusSuccess     OutcomeStatus = "SUCCESS"
	StatusTimeout     OutcomeStatus = "TIMEOUT"
	StatusParseError  OutcomeStatus = "PARSE_ERROR"
	StatusConfigError OutcomeStatus = "CONFIG_ERROR"
)

// FailureStatuses returns the statuses counted as failures
func FailureStatuses() []OutcomeStatus {
	return []OutcomeStatus{StatusTimeout, StatusParseError, StatusConfigError}
}

// IsFailure reports whether the status counts toward the failure ratio
func (s OutcomeStatus) IsFailure() bool {
	return s != StatusSuccess
}

// EvaluationRequest is the rendered payload sent to the evaluator for one instance.
// Never mutated after it is persisted.
type EvaluationRequest struct {
	RunID           string                 `json:"run_id"`
	InstanceID      string                 `json:"instance_id"`
	TemplateUsed    string                 `json:"template_used"`
	RenderedPayload string                 `json:"rendered_payload"`
	MarketContext   map[string]interface{} `json:"market_context"`
	CreatedAt       time.Time              `json:"created_at"`
}

// EvaluationOutcome is the single result recorded for an active instance
type EvaluationOutcome struct {
	InstanceID  string        `json:"instance_id"`
	Status      OutcomeStatus `json:"status"`
	RawOutput   string        `json:"raw_output,omitempty"`
	Signal      *Signal       `json:"signal,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// ConsultationRun is the audit record of one consultation
type ConsultationRun struct {
	RunID            string              `json:"run_id"`
	SectorFilter     string              `json:"sector_filter"`
	InstancesInvoked int                 `json:"instances_invoked"`
	Outcomes         []EvaluationOutcome `json:"outcomes"`
	StartedAt        time.Time           `json:"started_at"`
	CompletedAt      time.Time           `json:"completed_at"`
	FailureRatio     float64             `json:"failure_ratio"`
	Degraded         bool                `json:"degraded"`
	Stage            Stage               `json:"stage"`
	Error            string              `json:"error,omitempty"`
}
