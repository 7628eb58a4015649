package contracts

import (
	"context"
	"errors"
	"fmt"
)

// ErrTemplateNotFound is returned by a TemplateSource for an unknown template id
var ErrTemplateNotFound = fmt.Errorf("%w: template not found", ErrConfig)

// ErrDuplicateSnapshot is returned when a snapshot key already exists
var ErrDuplicateSnapshot = errors.New("snapshot already exists")

// InstanceSource supplies the strategy instances of a run
// ⭐ SSOT: 인스턴스 조회 인터페이스 (DI, 전역 상태 없음)
type InstanceSource interface {
	// ListActiveInstances returns enabled instances matching the sector filter,
	// ordered by priority desc then id asc.
	ListActiveInstances(ctx context.Context, sectorFilter string) ([]StrategyInstance, error)
}

// TemplateSource resolves template references
type TemplateSource interface {
	GetTemplate(ctx context.Context, id string) (*Template, error)
}

// SnapshotWriter durably stores evaluation requests before dispatch.
// Each call writes a new key; an existing key is never overwritten.
// ⭐ SSOT: 스냅샷 저장 인터페이스
type SnapshotWriter interface {
	Persist(ctx context.Context, req *EvaluationRequest) error
}

// AuditRecorder is optionally implemented by snapshot writers to keep raw
// evaluator output and the run record next to the request snapshots.
type AuditRecorder interface {
	RecordOutcome(ctx context.Context, runID string, outcome *EvaluationOutcome) error
	RecordRun(ctx context.Context, run *ConsultationRun) error
}

// Evaluator produces free-text output for a rendered payload.
// Implementations must honor ctx cancellation where they can and must not retry.
type Evaluator interface {
	Evaluate(ctx context.Context, payload string) (string, error)
}

// EvaluatorFunc adapts a function to Evaluator
type EvaluatorFunc func(ctx context.Context, payload string) (string, error)

// Evaluate calls f(ctx, payload)
func (f EvaluatorFunc) Evaluate(ctx context.Context, payload string) (string, error) {
	return f(ctx, payload)
}
