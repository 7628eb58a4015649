package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/pkg/logger"
	"github.com/wonny/aegis/consult/pkg/metrics"
)

func requests(n int) []*contracts.EvaluationRequest {
	reqs := make([]*contracts.EvaluationRequest, n)
	for i := range reqs {
		reqs[i] = &contracts.EvaluationRequest{
			RunID:           "run-1",
			InstanceID:      fmt.Sprintf("inst-%02d", i),
			RenderedPayload: fmt.Sprintf("payload-%02d", i),
		}
	}
	return reqs
}

// concurrencyProbe counts calls in flight around an artificial delay
type concurrencyProbe struct {
	delay   time.Duration
	current int32
	max     int32
	calls   int32
}

func (p *concurrencyProbe) Evaluate(ctx context.Context, payload string) (string, error) {
	n := atomic.AddInt32(&p.current, 1)
	defer atomic.AddInt32(&p.current, -1)
	atomic.AddInt32(&p.calls, 1)

	for {
		m := atomic.LoadInt32(&p.max)
		if n <= m || atomic.CompareAndSwapInt32(&p.max, m, n) {
			break
		}
	}

	time.Sleep(p.delay)
	return "out:" + payload, nil
}

func newDispatcher(ev contracts.Evaluator) *Dispatcher {
	return NewDispatcher(ev, metrics.New(prometheus.NewRegistry()), logger.Nop())
}

func TestDispatch_ConcurrencyCeiling(t *testing.T) {
	probe := &concurrencyProbe{delay: 20 * time.Millisecond}
	d := newDispatcher(probe)

	results := d.Dispatch(context.Background(), requests(20), Limits{
		MaxConcurrent:  3,
		PerCallTimeout: time.Second,
		RunDeadline:    5 * time.Second,
	})

	require.Len(t, results, 20)
	assert.LessOrEqual(t, atomic.LoadInt32(&probe.max), int32(3))
	assert.Equal(t, int32(20), atomic.LoadInt32(&probe.calls))
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.False(t, r.TimedOut)
	}
}

func TestDispatch_PreservesInputOrder(t *testing.T) {
	// later requests finish first
	ev := contracts.EvaluatorFunc(func(ctx context.Context, payload string) (string, error) {
		var i int
		fmt.Sscanf(payload, "payload-%d", &i)
		time.Sleep(time.Duration(10-i) * 5 * time.Millisecond)
		return payload, nil
	})

	results := newDispatcher(ev).Dispatch(context.Background(), requests(10), Limits{MaxConcurrent: 10, RunDeadline: 2 * time.Second})

	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("inst-%02d", i), r.InstanceID)
		assert.Equal(t, fmt.Sprintf("payload-%02d", i), r.Output)
	}
}

func TestDispatch_SerializesAtConcurrencyOne(t *testing.T) {
	probe := &concurrencyProbe{delay: 100 * time.Millisecond}
	d := newDispatcher(probe)

	start := time.Now()
	results := d.Dispatch(context.Background(), requests(5), Limits{
		MaxConcurrent:  1,
		PerCallTimeout: time.Second,
		RunDeadline:    5 * time.Second,
	})
	elapsed := time.Since(start)

	require.Len(t, results, 5)
	assert.Equal(t, int32(1), atomic.LoadInt32(&probe.max))
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 900*time.Millisecond)
}

func TestDispatch_RunDeadline(t *testing.T) {
	// ignores ctx on purpose
	ev := contracts.EvaluatorFunc(func(ctx context.Context, payload string) (string, error) {
		if payload == "payload-01" {
			time.Sleep(500 * time.Millisecond)
		}
		return "ok", nil
	})

	start := time.Now()
	results := newDispatcher(ev).Dispatch(context.Background(), requests(2), Limits{
		MaxConcurrent:  5,
		PerCallTimeout: time.Second,
		RunDeadline:    50 * time.Millisecond,
	})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 300*time.Millisecond, "dispatch must return at the run deadline")
	require.Len(t, results, 2)
	assert.False(t, results[0].TimedOut)
	assert.Equal(t, "ok", results[0].Output)
	assert.True(t, results[1].TimedOut)
	assert.Equal(t, "run deadline exceeded", results[1].Detail)
}

func TestDispatch_PerCallTimeout(t *testing.T) {
	ev := contracts.EvaluatorFunc(func(ctx context.Context, payload string) (string, error) {
		if payload == "payload-00" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	})

	results := newDispatcher(ev).Dispatch(context.Background(), requests(3), Limits{
		MaxConcurrent:  3,
		PerCallTimeout: 30 * time.Millisecond,
		RunDeadline:    2 * time.Second,
	})

	assert.True(t, results[0].TimedOut)
	assert.Equal(t, "per-call timeout exceeded", results[0].Detail)
	assert.NoError(t, results[0].Err)
	assert.False(t, results[1].TimedOut)
	assert.False(t, results[2].TimedOut)
}

func TestDispatch_AbandonedCallKeepsSlot(t *testing.T) {
	var current, max int32
	ev := contracts.EvaluatorFunc(func(ctx context.Context, payload string) (string, error) {
		n := atomic.AddInt32(&current, 1)
		defer atomic.AddInt32(&current, -1)
		if n > atomic.LoadInt32(&max) {
			atomic.StoreInt32(&max, n)
		}
		if payload == "payload-00" {
			time.Sleep(200 * time.Millisecond) // ignores its 20ms timeout
		}
		return "ok", nil
	})

	results := newDispatcher(ev).Dispatch(context.Background(), requests(2), Limits{
		MaxConcurrent:  1,
		PerCallTimeout: 20 * time.Millisecond,
		RunDeadline:    2 * time.Second,
	})

	assert.True(t, results[0].TimedOut)
	assert.False(t, results[1].TimedOut)
	assert.Equal(t, int32(1), atomic.LoadInt32(&max))
	assert.GreaterOrEqual(t, results[1].InvokedAt.Sub(results[0].InvokedAt), 150*time.Millisecond)
}

func TestDispatch_EvaluatorErrors(t *testing.T) {
	ev := contracts.EvaluatorFunc(func(ctx context.Context, payload string) (string, error) {
		switch payload {
		case "payload-00":
			return "", errors.New("upstream 500")
		case "payload-01":
			panic("boom")
		}
		return "ok", nil
	})

	results := newDispatcher(ev).Dispatch(context.Background(), requests(3), Limits{RunDeadline: time.Second})

	require.Error(t, results[0].Err)
	assert.False(t, results[0].TimedOut)
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "panic")
	assert.NoError(t, results[2].Err)
}

func TestDispatch_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ev := contracts.EvaluatorFunc(func(ctx context.Context, payload string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results := newDispatcher(ev).Dispatch(ctx, requests(2), Limits{RunDeadline: 5 * time.Second})
	for _, r := range results {
		assert.True(t, r.TimedOut)
		assert.Equal(t, "run cancelled", r.Detail)
	}
}

func TestDispatch_Empty(t *testing.T) {
	assert.Empty(t, newDispatcher(contracts.EvaluatorFunc(nil)).Dispatch(context.Background(), nil, Limits{}))
}

func TestCollector_SealDiscardsLateResults(t *testing.T) {
	reqs := requests(2)
	col := newCollector(reqs)

	assert.True(t, col.put(0, CallResult{InstanceID: "inst-00", Output: "first"}))
	assert.True(t, col.put(0, CallResult{InstanceID: "inst-00", Output: "second"}))

	results, missing := col.seal("run deadline exceeded")
	assert.Equal(t, 1, missing)
	assert.Equal(t, "first", results[0].Output)
	assert.True(t, results[1].TimedOut)

	assert.False(t, col.put(1, CallResult{InstanceID: "inst-01", Output: "late"}))
}

func TestLimits_WithDefaults(t *testing.T) {
	l := Limits{}.withDefaults()
	assert.Equal(t, DefaultMaxConcurrent, l.MaxConcurrent)
	assert.Equal(t, DefaultPerCallTimeout, l.PerCallTimeout)
	assert.Equal(t, DefaultRunDeadline, l.RunDeadline)
}
