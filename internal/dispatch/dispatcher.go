package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/pkg/logger"
	"github.com/wonny/aegis/consult/pkg/metrics"
)

// Default limits
const (
	DefaultMaxConcurrent  = 50
	DefaultPerCallTimeout = 30 * time.Second
	DefaultRunDeadline    = 30 * time.Second
)

// Limits bound one dispatch
type Limits struct {
	MaxConcurrent  int
	PerCallTimeout time.Duration
	RunDeadline    time.Duration
}

// withDefaults fills zero values
func (l Limits) withDefaults() Limits {
	if l.MaxConcurrent <= 0 {
		l.MaxConcurrent = DefaultMaxConcurrent
	}
	if l.PerCallTimeout <= 0 {
		l.PerCallTimeout = DefaultPerCallTimeout
	}
	if l.RunDeadline <= 0 {
		l.RunDeadline = DefaultRunDeadline
	}
	return l
}

// CallResult is the raw result of one evaluator call
type CallResult struct {
	InstanceID string
	Output     string
	Err        error // evaluator failure other than a timeout
	TimedOut   bool
	Detail     string    // timeout reason
	InvokedAt  time.Time // zero when the call never started
	Duration   time.Duration
}

// Dispatcher runs evaluator calls with bounded concurrency.
// A slot is held until the evaluator call actually returns, so abandoned
// calls still count against MaxConcurrent.
// ⭐ SSOT: Evaluator 병렬 호출은 여기서만
type Dispatcher struct {
	evaluator contracts.Evaluator
	metrics   *metrics.Recorder
	logger    *logger.Logger
}

// NewDispatcher creates a dispatcher; rec may be nil
func NewDispatcher(evaluator contracts.Evaluator, rec *metrics.Recorder, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		evaluator: evaluator,
		metrics:   rec,
		logger:    log.WithField("module", "dispatch"),
	}
}

// Dispatch evaluates every request and returns one result per request, in input order.
// It returns no later than the run deadline; calls still pending then are TIMEOUT.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs []*contracts.EvaluationRequest, limits Limits) []CallResult {
	limits = limits.withDefaults()
	if len(reqs) == 0 {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, limits.RunDeadline)
	defer cancel()

	d.logger.WithFields(map[string]interface{}{
		"requests":         len(reqs),
		"max_concurrent":   limits.MaxConcurrent,
		"per_call_timeout": limits.PerCallTimeout.String(),
		"run_deadline":     limits.RunDeadline.String(),
	}).Debug("Starting dispatch")

	sem := semaphore.NewWeighted(int64(limits.MaxConcurrent))
	col := newCollector(reqs)

	var wg sync.WaitGroup
	for i, req := range reqs {
		if err := sem.Acquire(runCtx, 1); err != nil {
			break // 데드라인: 나머지는 seal 시 TIMEOUT 처리
		}
		if runCtx.Err() != nil {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(idx int, req *contracts.EvaluationRequest) {
			defer wg.Done()
			d.call(runCtx, sem, limits.PerCallTimeout, idx, req, col)
		}(i, req)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
	}

	results, late := col.seal(timeoutDetail(runCtx))
	if late > 0 {
		d.logger.WithFields(map[string]interface{}{
			"pending": late,
		}).Warn("Run deadline reached with calls pending")
	}

	return results
}

type evalResult struct {
	output string
	err    error
}

// call runs one evaluation under the per-call timeout
func (d *Dispatcher) call(runCtx context.Context, sem *semaphore.Weighted, timeout time.Duration, idx int, req *contracts.EvaluationRequest, col *collector) {
	callCtx, cancel := context.WithTimeout(runCtx, timeout)
	defer cancel()

	invokedAt := time.Now()
	resultCh := make(chan evalResult, 1)

	go func() {
		defer sem.Release(1)
		d.metrics.EvaluationStarted()
		defer d.metrics.EvaluationFinished()

		resultCh <- d.evaluate(callCtx, req.RenderedPayload)
	}()

	select {
	case res := <-resultCh:
		result := CallResult{
			InstanceID: req.InstanceID,
			Output:     res.output,
			Err:        res.err,
			InvokedAt:  invokedAt,
			Duration:   time.Since(invokedAt),
		}
		// 컨텍스트 만료로 인한 실패는 타임아웃으로 분류
		if res.err != nil && callCtx.Err() != nil {
			result.Err = nil
			result.TimedOut = true
			result.Detail = timeoutDetail(runCtx)
		}
		if !col.put(idx, result) {
			d.logger.WithField("instance_id", req.InstanceID).Debug("Discarded result after run deadline")
		}

	case <-callCtx.Done():
		col.put(idx, CallResult{
			InstanceID: req.InstanceID,
			TimedOut:   true,
			Detail:     timeoutDetail(runCtx),
			InvokedAt:  invokedAt,
			Duration:   time.Since(invokedAt),
		})
	}
}

// evaluate calls the evaluator, turning a panic into an error
func (d *Dispatcher) evaluate(ctx context.Context, payload string) (res evalResult) {
	defer func() {
		if r := recover(); r != nil {
			res = evalResult{err: fmt.Errorf("evaluator panic: %v", r)}
		}
	}()

	out, err := d.evaluator.Evaluate(ctx, payload)
	return evalResult{output: out, err: err}
}

// timeoutDetail explains why a call ended without a result
func timeoutDetail(runCtx context.Context) string {
	switch {
	case errors.Is(runCtx.Err(), context.Canceled):
		return "run cancelled"
	case runCtx.Err() != nil:
		return "run deadline exceeded"
	default:
		return "per-call timeout exceeded"
	}
}
