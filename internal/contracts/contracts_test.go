package contracts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrategyInstance_MatchesSector(t *testing.T) {
	inst := StrategyInstance{ID: "a", Sectors: []string{"Tech", "semis"}}

	tests := []struct {
		filter string
		want   bool
	}{
		{"ALL", true},
		{"all", true},
		{"", true},
		{"tech", true},
		{"SEMIS", true},
		{"energy", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			assert.Equal(t, tt.want, inst.MatchesSector(tt.filter))
		})
	}

	assert.False(t, StrategyInstance{ID: "b"}.MatchesSector("tech"), "instance without sectors only matches ALL")
}

func TestSortInstances(t *testing.T) {
	instances := []StrategyInstance{
		{ID: "charlie", Priority: 1},
		{ID: "bravo", Priority: 5},
		{ID: "alpha", Priority: 1},
		{ID: "delta", Priority: 5},
	}

	SortInstances(instances)

	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}
	assert.Equal(t, []string{"bravo", "delta", "alpha", "charlie"}, ids)
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, errors.Is(ErrTemplateNotFound, ErrConfig))

	err := &RunError{RunID: "r1", Stage: StageLoadingInstances, Err: fmt.Errorf("%w: connection refused", ErrRegistry)}
	assert.True(t, errors.Is(err, ErrRegistry))
	assert.False(t, errors.Is(err, ErrStorage))
	assert.Contains(t, err.Error(), "LOADING_INSTANCES")

	var runErr *RunError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &runErr))
	assert.Equal(t, "r1", runErr.RunID)
}

func TestOutcomeStatus(t *testing.T) {
	assert.False(t, StatusSuccess.IsFailure())
	for _, s := range FailureStatuses() {
		assert.True(t, s.IsFailure(), s)
	}
	assert.False(t, SignalNoTrade.IsActionable())
	assert.True(t, SignalIronCondor.IsActionable())
	assert.Len(t, AllSignalTypes(), 8)
}

func TestAllStages(t *testing.T) {
	stages := AllStages()
	assert.Equal(t, StageInit, stages[0])
	assert.Equal(t, StageDone, stages[len(stages)-1])
}
