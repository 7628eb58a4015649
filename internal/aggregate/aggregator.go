package aggregate

import (
	"github.com/wonny/aegis/consult/internal/contracts"
)

// DegradedThreshold is the failure ratio above which a run is degraded
const DegradedThreshold = 0.5

// Summary is the run-level view of all outcomes
type Summary struct {
	Invoked      int                             `json:"invoked"`
	Succeeded    int                             `json:"succeeded"`
	NoTrade      int                             `json:"no_trade"`
	FailedByKind map[contracts.OutcomeStatus]int `json:"failed_by_kind"`
	FailureRatio float64                         `json:"failure_ratio"`
	Degraded     bool                            `json:"degraded"`
}

// Failed returns the total number of failed outcomes
func (s Summary) Failed() int {
	total := 0
	for _, n := range s.FailedByKind {
		total += n
	}
	return total
}

// Aggregator tracks one outcome per active instance.
// Used from the run goroutine only.
// ⭐ SSOT: 실패율/degraded 계산은 여기서만
type Aggregator struct {
	outcomes []contracts.EvaluationOutcome
	counts   map[contracts.OutcomeStatus]int
	noTrade  int
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		counts: make(map[contracts.OutcomeStatus]int),
	}
}

// Record adds an outcome
func (a *Aggregator) Record(o contracts.EvaluationOutcome) {
	a.outcomes = append(a.outcomes, o)
	a.counts[o.Status]++
	if o.Status == contracts.StatusSuccess && o.Signal != nil && !o.Signal.SignalType.IsActionable() {
		a.noTrade++
	}
}

// Outcomes returns the recorded outcomes in record order
func (a *Aggregator) Outcomes() []contracts.EvaluationOutcome {
	return a.outcomes
}

// Signals returns the signals of successful outcomes, in record order
func (a *Aggregator) Signals() []contracts.Signal {
	signals := make([]contracts.Signal, 0, len(a.outcomes))
	for _, o := range a.outcomes {
		if o.Status == contracts.StatusSuccess && o.Signal != nil {
			signals = append(signals, *o.Signal)
		}
	}
	return signals
}

// Summarize computes counts, failure ratio and the degraded flag.
// Every failure kind is present in FailedByKind, zero or not.
func (a *Aggregator) Summarize() Summary {
	s := Summary{
		Invoked:      len(a.outcomes),
		Succeeded:    a.counts[contracts.StatusSuccess],
		NoTrade:      a.noTrade,
		FailedByKind: make(map[contracts.OutcomeStatus]int, 3),
	}

	for _, status := range contracts.FailureStatuses() {
		s.FailedByKind[status] = a.counts[status]
	}

	if s.Invoked > 0 {
		s.FailureRatio = float64(s.Failed()) / float64(s.Invoked)
	}
	s.Degraded = s.FailureRatio > DegradedThreshold

	return s
}
