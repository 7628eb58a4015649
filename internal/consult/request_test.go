package consult

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/consult/internal/contracts"
)

func TestRequest_Defaults(t *testing.T) {
	req := Request{}
	require.NoError(t, req.prepare())

	assert.Equal(t, contracts.SectorAll, req.SectorFilter)
	assert.Equal(t, 50, req.MaxConcurrent)
	assert.Equal(t, 30*time.Second, req.PerCallTimeout())
	assert.Zero(t, req.RunDeadlineMs)
	assert.NotEmpty(t, req.RunID)
}

func TestRequest_ZeroMeansDefault(t *testing.T) {
	req := Request{MaxConcurrent: 0, PerCallTimeoutMs: 0, RunDeadlineMs: 0}
	require.NoError(t, req.prepare())

	assert.Equal(t, 50, req.MaxConcurrent)
	assert.Equal(t, 30*time.Second, req.PerCallTimeout())
	assert.Equal(t, BaseRunDeadline, req.RunDeadline(10))
}

func TestRequest_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"negative concurrency", Request{MaxConcurrent: -3}},
		{"huge concurrency", Request{MaxConcurrent: 5000}},
		{"negative timeout", Request{PerCallTimeoutMs: -1}},
		{"negative deadline", Request{RunDeadlineMs: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.prepare()
			assert.ErrorIs(t, err, contracts.ErrConfig)
		})
	}
}

func TestAutoDeadline(t *testing.T) {
	tests := []struct {
		name          string
		n             int
		maxConcurrent int
		perCall       time.Duration
		want          time.Duration
	}{
		{"few instances", 10, 50, 30 * time.Second, 30 * time.Second},
		{"short calls", 10, 50, 5 * time.Second, BaseRunDeadline},
		{"two waves", 60, 50, 30 * time.Second, 60 * time.Second},
		{"serialized", 5, 1, 10 * time.Second, 50 * time.Second},
		{"nothing to dispatch", 0, 50, 30 * time.Second, BaseRunDeadline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AutoDeadline(tt.n, tt.maxConcurrent, tt.perCall))
		})
	}
}

func TestRequest_ExplicitDeadline(t *testing.T) {
	req := Request{RunDeadlineMs: 1500}
	require.NoError(t, req.prepare())
	assert.Equal(t, 1500*time.Millisecond, req.RunDeadline(100))
}
