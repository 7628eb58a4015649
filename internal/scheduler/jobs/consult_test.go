package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/consult/internal/aggregate"
	"github.com/wonny/aegis/consult/internal/consult"
	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/pkg/logger"
)

type fakeConsulter struct {
	got consult.Request
	res *consult.Result
	err error
}

func (f *fakeConsulter) Consult(ctx context.Context, req consult.Request) (*consult.Result, error) {
	f.got = req
	return f.res, f.err
}

func TestConsultJob_Run(t *testing.T) {
	engine := &fakeConsulter{res: &consult.Result{
		Signals: []contracts.Signal{{InstanceID: "a"}},
		Summary: consult.Summary{
			RunID: "r-1",
			Summary: aggregate.Summary{
				Invoked:   2,
				Succeeded: 1,
				FailedByKind: map[contracts.OutcomeStatus]int{
					contracts.StatusTimeout: 1,
				},
				Degraded: false,
			},
		},
	}}

	job := NewConsultJob("0 30 9 * * *", engine, StaticMarket{"vix": 14},
		consult.Request{SectorFilter: "TECH", RunID: "stale", MaxConcurrent: 8}, logger.Nop())

	assert.Equal(t, "consult_TECH", job.Name())

	detail, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run=r-1 signals=1 invoked=2 succeeded=1 failed=1 degraded=false", detail)

	assert.Empty(t, engine.got.RunID, "every run gets a fresh id")
	assert.Equal(t, "TECH", engine.got.SectorFilter)
	assert.Equal(t, 8, engine.got.MaxConcurrent)
	assert.Equal(t, map[string]interface{}{"vix": 14}, engine.got.MarketContext)
}

func TestConsultJob_Aborted(t *testing.T) {
	engine := &fakeConsulter{
		res: &consult.Result{},
		err: &contracts.RunError{RunID: "r-2", Stage: contracts.StageLoadingInstances, Err: contracts.ErrRegistry},
	}

	job := NewConsultJob("@hourly", engine, StaticMarket{}, consult.Request{}, logger.Nop())
	assert.Equal(t, "consult_ALL", job.Name())

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrRegistry))
	assert.Contains(t, err.Error(), "LOADING_INSTANCES")
}

func TestFileMarket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"spot": 541.25, "vix": 14, "levels": [530, 550]}`), 0o644))

	market, err := NewFileMarket(path).MarketContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 541.25, market["spot"])
	assert.Equal(t, int64(14), market["vix"])
	assert.Equal(t, []interface{}{int64(530), int64(550)}, market["levels"])

	_, err = NewFileMarket(filepath.Join(t.TempDir(), "missing.json")).MarketContext(context.Background())
	assert.Error(t, err)
}

func TestDecodeMarket_Invalid(t *testing.T) {
	_, err := DecodeMarket([]byte(`[1,2]`))
	assert.Error(t, err)

	m, err := DecodeMarket([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, m)
}
