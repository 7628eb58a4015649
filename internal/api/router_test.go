package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/consult/internal/api/handlers"
	"github.com/wonny/aegis/consult/internal/consult"
	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/internal/registry"
	"github.com/wonny/aegis/consult/internal/scheduler"
	"github.com/wonny/aegis/consult/internal/snapshot"
	"github.com/wonny/aegis/consult/internal/template"
	"github.com/wonny/aegis/consult/pkg/logger"
	"github.com/wonny/aegis/consult/pkg/metrics"
)

const condorOutput = `{"signal":"IRON_CONDOR","target":"SPY","confidence":0.66,"reasoning":"range",
"params":{"legs":[
 {"action":"SELL","contract":{"strike":530,"right":"P","expiry":"20260116"},"quantity":1,"price":1.2},
 {"action":"BUY","contract":{"strike":525,"right":"P","expiry":"20260116"},"quantity":1,"price":0.8},
 {"action":"SELL","contract":{"strike":555,"right":"C","expiry":"20260116"},"quantity":1,"price":1.1},
 {"action":"BUY","contract":{"strike":560,"right":"C","expiry":"20260116"},"quantity":1,"price":0.7}],
"max_risk":420,"capital_required":500}}`

func newTestRouter(t *testing.T) (http.Handler, *snapshot.MemoryWriter) {
	t.Helper()

	source := registry.NewStaticSource(contracts.StrategyInstance{
		ID:         "condor-spy",
		Template:   "condor",
		Parameters: map[string]interface{}{"target": "SPY", "width": 5},
		Priority:   1,
		Enabled:    true,
		Sectors:    []string{"INDEX"},
	})
	templates := template.NewMemoryStore(map[string]string{
		"condor": "Iron condor on {{ target }}, wings {{ width }} wide, spot {{ market.spot }}",
	})
	writer := snapshot.NewMemoryWriter()
	evaluator := contracts.EvaluatorFunc(func(ctx context.Context, payload string) (string, error) {
		return condorOutput, nil
	})

	reg := prometheus.NewRegistry()
	log := logger.Nop()
	engine := consult.NewEngine(source, templates, writer, evaluator, metrics.New(reg), log)

	sched := scheduler.New(log)

	router := NewRouter(
		handlers.NewConsultHandler(engine, source, log),
		handlers.NewJobsHandler(sched),
		reg,
		log,
	)
	return router, writer
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRouter_Consult(t *testing.T) {
	router, writer := newTestRouter(t)

	body := `{"sector_filter":"INDEX","market_context":{"spot":541},"max_concurrent":4}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/consult", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Signals []contracts.Signal `json:"signals"`
		Summary struct {
			RunID        string         `json:"run_id"`
			Invoked      int            `json:"invoked"`
			Succeeded    int            `json:"succeeded"`
			FailedByKind map[string]int `json:"failed_by_kind"`
			Degraded     bool           `json:"degraded"`
			State        string         `json:"state"`
		} `json:"run_summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	require.Len(t, res.Signals, 1)
	assert.Equal(t, "condor-spy", res.Signals[0].InstanceID)
	assert.Equal(t, contracts.SignalIronCondor, res.Signals[0].SignalType)
	assert.Equal(t, 1, res.Summary.Succeeded)
	assert.Equal(t, map[string]int{"TIMEOUT": 0, "PARSE_ERROR": 0, "CONFIG_ERROR": 0}, res.Summary.FailedByKind)
	assert.Equal(t, "DONE", res.Summary.State)

	p, ok := writer.Snapshot(res.Summary.RunID, "condor-spy")
	require.True(t, ok)
	assert.Equal(t, "Iron condor on SPY, wings 5 wide, spot 541", p.Request.RenderedPayload)
}

func TestRouter_Metrics(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/consult", strings.NewReader(`{"market_context":{"spot":540}}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `consult_runs_total{result="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `consult_evaluations_total{status="SUCCESS"} 1`)
}

func TestRouter_InstancesAndJobs(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/instances?sector=ENERGY", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/consult", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
