package consult

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis/consult/internal/aggregate"
	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/internal/dedup"
	"github.com/wonny/aegis/consult/internal/dispatch"
	"github.com/wonny/aegis/consult/internal/normalize"
	"github.com/wonny/aegis/consult/internal/template"
	"github.com/wonny/aegis/consult/pkg/logger"
	"github.com/wonny/aegis/consult/pkg/metrics"
)

// Engine runs consultations: load → render+snapshot → dispatch → collect → dedup.
// It holds no per-run state, so one Engine serves concurrent Consult calls.
// ⭐ SSOT: 컨설테이션 파이프라인 조율은 여기서만
type Engine struct {
	instances  contracts.InstanceSource
	templates  contracts.TemplateSource
	snapshots  contracts.SnapshotWriter
	renderer   *template.Renderer
	dispatcher *dispatch.Dispatcher
	normalizer *normalize.Normalizer
	metrics    *metrics.Recorder
	logger     *logger.Logger

	now func() time.Time
}

// NewEngine creates an engine; rec may be nil
func NewEngine(
	instances contracts.InstanceSource,
	templates contracts.TemplateSource,
	snapshots contracts.SnapshotWriter,
	evaluator contracts.Evaluator,
	rec *metrics.Recorder,
	log *logger.Logger,
) *Engine {
	return &Engine{
		instances:  instances,
		templates:  templates,
		snapshots:  snapshots,
		renderer:   template.NewRenderer(),
		dispatcher: dispatch.NewDispatcher(evaluator, rec, log),
		normalizer: normalize.NewNormalizer(),
		metrics:    rec,
		logger:     log.WithField("module", "consult"),
		now:        time.Now,
	}
}

// Summary is the run summary returned to the caller
type Summary struct {
	RunID string `json:"run_id"`
	aggregate.Summary
	Error       string          `json:"error,omitempty"` // run-level failure, distinct from degraded
	State       contracts.Stage `json:"state"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Result is what every consultation returns, aborted or not
type Result struct {
	Signals []contracts.Signal         `json:"signals"`
	Summary Summary                    `json:"run_summary"`
	Run     *contracts.ConsultationRun `json:"-"`
}

// run is the state of one consultation
type run struct {
	req       Request
	record    *contracts.ConsultationRun
	instances []contracts.StrategyInstance
	outcomes  []*contracts.EvaluationOutcome // 인스턴스 순서와 동일
	requests  []*contracts.EvaluationRequest
	slots     []int // requests[i] → instances index
	log       *logger.Logger
}

// Consult runs one consultation.
// The returned Result is never nil. The error is non-nil only when the run
// aborted on a registry or snapshot storage failure (a *contracts.RunError),
// or when the request itself is invalid (contracts.ErrConfig).
func (e *Engine) Consult(ctx context.Context, req Request) (*Result, error) {
	startedAt := e.now()

	if err := req.prepare(); err != nil {
		return &Result{
			Signals: []contracts.Signal{},
			Summary: Summary{
				RunID:       req.RunID,
				Summary:     aggregate.NewAggregator().Summarize(),
				Error:       err.Error(),
				State:       contracts.StageDone,
				StartedAt:   startedAt,
				CompletedAt: e.now(),
			},
		}, err
	}

	r := &run{
		req: req,
		record: &contracts.ConsultationRun{
			RunID:        req.RunID,
			SectorFilter: req.SectorFilter,
			StartedAt:    startedAt,
			Stage:        contracts.StageInit,
		},
		log: e.logger.WithField("run_id", req.RunID),
	}

	r.log.WithFields(map[string]interface{}{
		"sector_filter":    req.SectorFilter,
		"max_concurrent":   req.MaxConcurrent,
		"per_call_timeout": req.PerCallTimeout().String(),
	}).Info("Starting consultation")

	// LOADING_INSTANCES
	if err := e.loadInstances(ctx, r); err != nil {
		return e.abort(ctx, r, contracts.StageLoadingInstances, err)
	}

	// RENDERING (스냅샷 저장 포함)
	if err := e.render(ctx, r); err != nil {
		return e.abort(ctx, r, contracts.StageRendering, err)
	}

	// DISPATCHING
	results := e.dispatch(ctx, r)

	// COLLECTING
	agg := e.collect(ctx, r, results)

	// DEDUPING
	signals := e.deduplicate(r, agg)

	return e.finish(ctx, r, agg, signals, nil), nil
}

func (e *Engine) enter(r *run, stage contracts.Stage) {
	r.record.Stage = stage
	r.log.WithField("stage", stage).Debug("Entering stage")
}

// loadInstances reads the active instances of the sector
func (e *Engine) loadInstances(ctx context.Context, r *run) error {
	e.enter(r, contracts.StageLoadingInstances)

	instances, err := e.instances.ListActiveInstances(ctx, r.req.SectorFilter)
	if err != nil {
		e.metrics.RecordError("registry")
		if !errors.Is(err, contracts.ErrRegistry) {
			err = fmt.Errorf("%w: %w", contracts.ErrRegistry, err)
		}
		return err
	}

	r.instances = instances
	r.outcomes = make([]*contracts.EvaluationOutcome, len(instances))

	r.record.InstancesInvoked = len(instances)
	r.log.WithField("instances", len(instances)).Info("Loaded active instances")
	return nil
}

type compiledEntry struct {
	compiled *template.Compiled
	err      error
}

// render builds and persists one request per valid instance.
// Invalid instances get a CONFIG_ERROR outcome and are not dispatched.
// A snapshot failure aborts the run before any evaluator call.
func (e *Engine) render(ctx context.Context, r *run) error {
	e.enter(r, contracts.StageRendering)

	cache := make(map[string]compiledEntry) // 런 단위 템플릿 캐시
	seen := make(map[string]bool, len(r.instances))

	for i, inst := range r.instances {
		if seen[inst.ID] {
			e.configError(r, i, fmt.Sprintf("duplicate instance id %q", inst.ID))
			continue
		}
		seen[inst.ID] = true

		entry, ok := cache[inst.Template]
		if !ok {
			entry = e.compile(ctx, inst.Template)
			cache[inst.Template] = entry
		}
		if entry.err != nil {
			e.configError(r, i, entry.err.Error())
			continue
		}

		payload, err := entry.compiled.Render(inst.Parameters, template.Vars{
			InstanceID: inst.ID,
			Market:     r.req.MarketContext,
		})
		if err != nil {
			e.configError(r, i, err.Error())
			continue
		}

		req := &contracts.EvaluationRequest{
			RunID:           r.req.RunID,
			InstanceID:      inst.ID,
			TemplateUsed:    inst.Template,
			RenderedPayload: payload,
			MarketContext:   r.req.MarketContext,
			CreatedAt:       e.now().UTC(),
		}

		if err := e.snapshots.Persist(ctx, req); err != nil {
			e.metrics.RecordError("storage")
			return fmt.Errorf("%w: instance %s: %w", contracts.ErrStorage, inst.ID, err)
		}

		r.requests = append(r.requests, req)
		r.slots = append(r.slots, i)
	}

	r.log.WithFields(map[string]interface{}{
		"rendered":      len(r.requests),
		"config_errors": len(r.instances) - len(r.requests),
	}).Info("Rendered and persisted requests")
	return nil
}

// compile resolves and parses a template reference
func (e *Engine) compile(ctx context.Context, ref string) compiledEntry {
	tpl, err := e.templates.GetTemplate(ctx, ref)
	if err != nil {
		if !errors.Is(err, contracts.ErrConfig) {
			err = fmt.Errorf("%w: template %q: %w", contracts.ErrConfig, ref, err)
		}
		return compiledEntry{err: err}
	}

	compiled, err := e.renderer.Compile(tpl)
	return compiledEntry{compiled: compiled, err: err}
}

func (e *Engine) configError(r *run, idx int, detail string) {
	inst := r.instances[idx]
	r.outcomes[idx] = &contracts.EvaluationOutcome{
		InstanceID:  inst.ID,
		Status:      contracts.StatusConfigError,
		ErrorDetail: detail,
	}
	e.metrics.RecordOutcome(string(contracts.StatusConfigError), 0)

	r.log.WithFields(map[string]interface{}{
		"instance_id": inst.ID,
		"template":    inst.Template,
		"detail":      detail,
	}).Warn("Instance skipped")
}

// dispatch evaluates every persisted request
func (e *Engine) dispatch(ctx context.Context, r *run) []dispatch.CallResult {
	e.enter(r, contracts.StageDispatching)

	limits := dispatch.Limits{
		MaxConcurrent:  r.req.MaxConcurrent,
		PerCallTimeout: r.req.PerCallTimeout(),
		RunDeadline:    r.req.RunDeadline(len(r.requests)),
	}

	started := e.now()
	results := e.dispatcher.Dispatch(ctx, r.requests, limits)

	r.log.WithFields(map[string]interface{}{
		"requests":     len(r.requests),
		"run_deadline": limits.RunDeadline.String(),
		"elapsed_ms":   e.now().Sub(started).Milliseconds(),
	}).Info("Dispatch completed")
	return results
}

// collect turns call results into outcomes and aggregates them in instance order
func (e *Engine) collect(ctx context.Context, r *run, results []dispatch.CallResult) *aggregate.Aggregator {
	e.enter(r, contracts.StageCollecting)

	for i, res := range results {
		idx := r.slots[i]
		inst := r.instances[idx]
		r.outcomes[idx] = e.toOutcome(r.log, inst, res)
		e.metrics.RecordOutcome(string(r.outcomes[idx].Status), res.Duration.Seconds())
	}

	agg := aggregate.NewAggregator()
	audit, _ := e.snapshots.(contracts.AuditRecorder)
	for _, o := range r.outcomes {
		agg.Record(*o)
		r.record.Outcomes = append(r.record.Outcomes, *o)

		if audit != nil {
			if err := audit.RecordOutcome(ctx, r.req.RunID, o); err != nil {
				e.metrics.RecordError("audit")
				r.log.WithError(err).WithField("instance_id", o.InstanceID).Warn("Failed to record raw output")
			}
		}
	}
	return agg
}

// toOutcome classifies one call result
func (e *Engine) toOutcome(log *logger.Logger, inst contracts.StrategyInstance, res dispatch.CallResult) *contracts.EvaluationOutcome {
	out := &contracts.EvaluationOutcome{
		InstanceID: inst.ID,
		RawOutput:  res.Output,
		Duration:   res.Duration,
	}

	switch {
	case res.TimedOut:
		out.Status = contracts.StatusTimeout
		out.ErrorDetail = fmt.Sprintf("%v: %s", contracts.ErrTimeout, res.Detail)

	case res.Err != nil:
		// 평가기 오류는 파싱 가능한 출력이 없는 것으로 취급
		out.Status = contracts.StatusParseError
		out.ErrorDetail = "evaluator error: " + res.Err.Error()

	default:
		sig, err := e.normalizer.Normalize(inst.ID, inst.Template, res.Output)
		if err != nil {
			out.Status = contracts.StatusParseError
			out.ErrorDetail = err.Error()
			break
		}
		out.Status = contracts.StatusSuccess
		out.Signal = sig
	}

	if out.Status != contracts.StatusSuccess {
		log.WithFields(map[string]interface{}{
			"instance_id": inst.ID,
			"status":      out.Status,
			"detail":      out.ErrorDetail,
		}).Warn("Evaluation failed")
	}
	return out
}

// deduplicate collapses equivalent signals, keeping instance order
func (e *Engine) deduplicate(r *run, agg *aggregate.Aggregator) []contracts.Signal {
	e.enter(r, contracts.StageDeduping)

	priority := make(map[string]int, len(r.instances))
	for _, inst := range r.instances {
		if _, ok := priority[inst.ID]; !ok {
			priority[inst.ID] = inst.Priority
		}
	}

	return dedup.Deduplicate(agg.Signals(), priority)
}

// abort ends a run early with empty signals.
// The summary counts every loaded instance as invoked; outcomes recorded so far keep their kind.
func (e *Engine) abort(ctx context.Context, r *run, stage contracts.Stage, err error) (*Result, error) {
	runErr := &contracts.RunError{RunID: r.req.RunID, Stage: stage, Err: err}

	agg := aggregate.NewAggregator()
	for _, o := range r.outcomes {
		if o != nil {
			agg.Record(*o)
			r.record.Outcomes = append(r.record.Outcomes, *o)
		}
	}

	r.log.WithError(err).WithField("stage", stage).Error("Consultation aborted")
	return e.finish(ctx, r, agg, []contracts.Signal{}, runErr), runErr
}

// finish moves the run to DONE and records it
func (e *Engine) finish(ctx context.Context, r *run, agg *aggregate.Aggregator, signals []contracts.Signal, runErr error) *Result {
	e.enter(r, contracts.StageDone)

	summary := agg.Summarize()
	if runErr != nil {
		// 중단된 run은 Error로만 표시, degraded 아님
		summary.Invoked = len(r.instances)
		summary.FailureRatio = 0
		if summary.Invoked > 0 {
			summary.FailureRatio = float64(summary.Failed()) / float64(summary.Invoked)
		}
		summary.Degraded = false
	}
	completedAt := e.now()

	r.record.CompletedAt = completedAt
	r.record.FailureRatio = summary.FailureRatio
	r.record.Degraded = summary.Degraded

	result := &Result{
		Signals: signals,
		Summary: Summary{
			RunID:       r.req.RunID,
			Summary:     summary,
			State:       contracts.StageDone,
			StartedAt:   r.record.StartedAt,
			CompletedAt: completedAt,
		},
		Run: r.record,
	}

	outcome := "ok"
	switch {
	case runErr != nil:
		outcome = "aborted"
		result.Summary.Error = runErr.Error()
		r.record.Error = runErr.Error()
	case summary.Degraded:
		outcome = "degraded"
	}

	if audit, ok := e.snapshots.(contracts.AuditRecorder); ok {
		if err := audit.RecordRun(ctx, r.record); err != nil {
			e.metrics.RecordError("audit")
			r.log.WithError(err).Warn("Failed to record run")
		}
	}
	e.metrics.RecordRun(outcome, summary.FailureRatio, len(signals))

	r.log.WithFields(map[string]interface{}{
		"result":        outcome,
		"invoked":       summary.Invoked,
		"succeeded":     summary.Succeeded,
		"failed":        summary.Failed(),
		"failure_ratio": summary.FailureRatio,
		"signals":       len(signals),
		"duration_ms":   completedAt.Sub(r.record.StartedAt).Milliseconds(),
	}).Info("Consultation completed")

	if summary.Degraded {
		r.log.WithField("failure_ratio", summary.FailureRatio).Warn("Degraded run: more than half of the instances failed")
	}

	return result
}
