package consult

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// BaseRunDeadline is the smallest automatic run deadline
const BaseRunDeadline = 30 * time.Second

var validate = validator.New()

// Request holds the options of one consultation.
// Zero limits mean "use the default"; negative or out-of-range values are ErrConfig.
type Request struct {
	RunID         string                 `json:"run_id,omitempty" validate:"omitempty,max=64"`
	SectorFilter  string                 `json:"sector_filter" default:"ALL" validate:"required,max=64"`
	MarketContext map[string]interface{} `json:"market_context"`
	MaxConcurrent int                    `json:"max_concurrent" default:"50" validate:"gte=1,lte=1000"`

	// Milliseconds, as in the public API. RunDeadlineMs 0 = 자동 산정
	PerCallTimeoutMs int `json:"per_call_timeout_ms" default:"30000" validate:"gte=1"`
	RunDeadlineMs    int `json:"run_deadline_ms" validate:"gte=0"`
}

// PerCallTimeout returns the per-call timeout as a duration
func (r *Request) PerCallTimeout() time.Duration {
	return time.Duration(r.PerCallTimeoutMs) * time.Millisecond
}

// RunDeadline returns the run deadline for n dispatched requests
func (r *Request) RunDeadline(n int) time.Duration {
	if r.RunDeadlineMs > 0 {
		return time.Duration(r.RunDeadlineMs) * time.Millisecond
	}
	return AutoDeadline(n, r.MaxConcurrent, r.PerCallTimeout())
}

// AutoDeadline scales the run deadline with the number of dispatch waves:
// max(30s, perCall × ceil(n / maxConcurrent)).
func AutoDeadline(n, maxConcurrent int, perCall time.Duration) time.Duration {
	if n <= 0 || maxConcurrent <= 0 {
		return BaseRunDeadline
	}
	waves := (n + maxConcurrent - 1) / maxConcurrent
	if d := perCall * time.Duration(waves); d > BaseRunDeadline {
		return d
	}
	return BaseRunDeadline
}

// prepare fills defaults and validates the request
func (r *Request) prepare() error {
	if err := defaults.Set(r); err != nil {
		return fmt.Errorf("%w: request defaults: %v", contracts.ErrConfig, err)
	}

	r.SectorFilter = strings.TrimSpace(r.SectorFilter)
	if r.SectorFilter == "" {
		r.SectorFilter = contracts.SectorAll
	}

	if err := validate.Struct(r); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("%w: %s failed %s=%s", contracts.ErrConfig, fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("%w: %v", contracts.ErrConfig, err)
	}

	if r.RunID == "" {
		r.RunID = NewRunID()
	}
	return nil
}

// NewRunID returns a new unique run id
func NewRunID() string {
	return uuid.NewString()
}
