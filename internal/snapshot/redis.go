package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/pkg/redis"
)

// RedisWriter stores snapshots under individual keys with SETNX
type RedisWriter struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // 0 = 만료 없음
}

// NewRedisWriter creates a Redis-backed snapshot writer
func NewRedisWriter(client *redis.Client, prefix string, ttl time.Duration) *RedisWriter {
	return &RedisWriter{client: client, prefix: prefix, ttl: ttl}
}

// Persist implements contracts.SnapshotWriter
func (w *RedisWriter) Persist(ctx context.Context, req *contracts.EvaluationRequest) error {
	return w.setNew(ctx, redis.SnapshotKey(w.prefix, req.RunID, req.InstanceID, req.CreatedAt), req)
}

// RecordOutcome implements contracts.AuditRecorder
func (w *RedisWriter) RecordOutcome(ctx context.Context, runID string, outcome *contracts.EvaluationOutcome) error {
	return w.setNew(ctx, redis.OutputKey(w.prefix, runID, outcome.InstanceID), NewOutputRecord(runID, outcome))
}

// RecordRun implements contracts.AuditRecorder
func (w *RedisWriter) RecordRun(ctx context.Context, run *contracts.ConsultationRun) error {
	return w.setNew(ctx, redis.RunKey(w.prefix, run.RunID), run)
}

func (w *RedisWriter) setNew(ctx context.Context, key string, v interface{}) error {
	if !w.client.Enabled() {
		return fmt.Errorf("redis is disabled")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	ok, err := w.client.Redis().SetNX(ctx, key, data, w.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", contracts.ErrDuplicateSnapshot, key)
	}
	return nil
}
