package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/aegis/consult/internal/contracts"
)

func outcome(id string, status contracts.OutcomeStatus, signal contracts.SignalType) contracts.EvaluationOutcome {
	o := contracts.EvaluationOutcome{InstanceID: id, Status: status}
	if status == contracts.StatusSuccess {
		o.Signal = &contracts.Signal{InstanceID: id, SignalType: signal, Target: "SPY", Confidence: 0.5}
	}
	return o
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []contracts.OutcomeStatus
		wantRatio    float64
		wantDegraded bool
	}{
		{"empty run", nil, 0, false},
		{"all success", []contracts.OutcomeStatus{contracts.StatusSuccess, contracts.StatusSuccess}, 0, false},
		{"exactly half", []contracts.OutcomeStatus{contracts.StatusSuccess, contracts.StatusTimeout}, 0.5, false},
		{"majority failed", []contracts.OutcomeStatus{contracts.StatusSuccess, contracts.StatusTimeout, contracts.StatusParseError}, 2.0 / 3.0, true},
		{"all failed", []contracts.OutcomeStatus{contracts.StatusConfigError}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregator()
			for i, st := range tt.statuses {
				a.Record(outcome(string(rune('a'+i)), st, contracts.SignalIronCondor))
			}

			s := a.Summarize()
			assert.Equal(t, len(tt.statuses), s.Invoked)
			assert.InDelta(t, tt.wantRatio, s.FailureRatio, 1e-9)
			assert.Equal(t, tt.wantDegraded, s.Degraded)
			assert.Equal(t, s.Invoked, s.Succeeded+s.Failed())
		})
	}
}

func TestSummarize_FailedByKind(t *testing.T) {
	a := NewAggregator()
	a.Record(outcome("a", contracts.StatusSuccess, contracts.SignalNoTrade))
	a.Record(outcome("b", contracts.StatusSuccess, contracts.SignalIronCondor))
	a.Record(outcome("c", contracts.StatusParseError, ""))
	a.Record(outcome("d", contracts.StatusParseError, ""))

	s := a.Summarize()
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.NoTrade)
	assert.Equal(t, map[contracts.OutcomeStatus]int{
		contracts.StatusTimeout:     0,
		contracts.StatusParseError:  2,
		contracts.StatusConfigError: 0,
	}, s.FailedByKind)
	assert.Equal(t, 2, s.Failed())
}

func TestSignals(t *testing.T) {
	a := NewAggregator()
	a.Record(outcome("a", contracts.StatusTimeout, ""))
	a.Record(outcome("b", contracts.StatusSuccess, contracts.SignalIronCondor))
	a.Record(outcome("c", contracts.StatusSuccess, contracts.SignalNoTrade))

	signals := a.Signals()
	if assert.Len(t, signals, 2) {
		assert.Equal(t, "b", signals[0].InstanceID)
		assert.Equal(t, "c", signals[1].InstanceID)
	}
	assert.Len(t, a.Outcomes(), 3)
}
