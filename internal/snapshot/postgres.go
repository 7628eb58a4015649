package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis/consult/internal/contracts"
)

const uniqueViolation = "23505"

// PostgresWriter appends snapshots to consult.request_snapshots.
// Plain INSERTs only; the primary key rejects a second write of the same key.
// ⭐ SSOT: 스냅샷 DB 저장은 여기서만
type PostgresWriter struct {
	pool *pgxpool.Pool
}

// NewPostgresWriter creates a database-backed snapshot writer
func NewPostgresWriter(pool *pgxpool.Pool) *PostgresWriter {
	return &PostgresWriter{pool: pool}
}

// Persist implements contracts.SnapshotWriter
func (w *PostgresWriter) Persist(ctx context.Context, req *contracts.EvaluationRequest) error {
	marketJSON, err := json.Marshal(req.MarketContext)
	if err != nil {
		return fmt.Errorf("failed to marshal market context: %w", err)
	}

	query := `
		INSERT INTO consult.request_snapshots (
			run_id, instance_id, created_at, template_used, rendered_payload, market_context
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = w.pool.Exec(ctx, query,
		req.RunID, req.InstanceID, req.CreatedAt, req.TemplateUsed, req.RenderedPayload, marketJSON,
	)
	return insertErr("snapshot", err)
}

// RecordOutcome implements contracts.AuditRecorder
func (w *PostgresWriter) RecordOutcome(ctx context.Context, runID string, outcome *contracts.EvaluationOutcome) error {
	rec := NewOutputRecord(runID, outcome)

	query := `
		INSERT INTO consult.raw_outputs (
			run_id, instance_id, status, raw_output, error_detail, duration_ms, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := w.pool.Exec(ctx, query,
		rec.RunID, rec.InstanceID, string(rec.Status), rec.RawOutput, rec.ErrorDetail, rec.DurationMs, rec.RecordedAt,
	)
	return insertErr("raw output", err)
}

// RecordRun implements contracts.AuditRecorder
func (w *PostgresWriter) RecordRun(ctx context.Context, run *contracts.ConsultationRun) error {
	outcomesJSON, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	query := `
		INSERT INTO consult.runs (
			run_id, sector_filter, instances_invoked, failure_ratio, degraded,
			stage, error, outcomes, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = w.pool.Exec(ctx, query,
		run.RunID, run.SectorFilter, run.InstancesInvoked, run.FailureRatio, run.Degraded,
		string(run.Stage), run.Error, outcomesJSON, run.StartedAt, run.CompletedAt,
	)
	return insertErr("run", err)
}

// GetSnapshots returns the request snapshots of a run ordered by creation time
func (w *PostgresWriter) GetSnapshots(ctx context.Context, runID string) ([]contracts.EvaluationRequest, error) {
	query := `
		SELECT run_id, instance_id, created_at, template_used, rendered_payload, market_context
		FROM consult.request_snapshots
		WHERE run_id = $1
		ORDER BY created_at, instance_id
	`

	rows, err := w.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []contracts.EvaluationRequest
	for rows.Next() {
		var req contracts.EvaluationRequest
		var marketJSON []byte
		if err := rows.Scan(&req.RunID, &req.InstanceID, &req.CreatedAt, &req.TemplateUsed, &req.RenderedPayload, &marketJSON); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := json.Unmarshal(marketJSON, &req.MarketContext); err != nil {
			return nil, fmt.Errorf("failed to unmarshal market context: %w", err)
		}
		snapshots = append(snapshots, req)
	}

	return snapshots, rows.Err()
}

func insertErr(what string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", contracts.ErrDuplicateSnapshot, pgErr.Detail)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}
