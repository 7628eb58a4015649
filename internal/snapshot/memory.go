package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// MemoryWriter keeps snapshots in memory. Used by tests and dry runs.
type MemoryWriter struct {
	mu       sync.Mutex
	requests map[string]Persisted
	order    []string
	outcomes map[string]*OutputRecord
	runs     map[string]*contracts.ConsultationRun
	err      error
}

// Persisted is a stored request with the time the write completed
type Persisted struct {
	Request     contracts.EvaluationRequest
	PersistedAt time.Time
}

// NewMemoryWriter creates an empty in-memory writer
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{
		requests: make(map[string]Persisted),
		outcomes: make(map[string]*OutputRecord),
		runs:     make(map[string]*contracts.ConsultationRun),
	}
}

// FailWith makes subsequent Persist calls return err
func (w *MemoryWriter) FailWith(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

// Persist implements contracts.SnapshotWriter
func (w *MemoryWriter) Persist(ctx context.Context, req *contracts.EvaluationRequest) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}

	key := fmt.Sprintf("%s/%s/%d", req.RunID, req.InstanceID, req.CreatedAt.UnixNano())
	if _, exists := w.requests[key]; exists {
		return fmt.Errorf("%w: %s", contracts.ErrDuplicateSnapshot, key)
	}

	w.requests[key] = Persisted{Request: *req, PersistedAt: time.Now()}
	w.order = append(w.order, key)
	return nil
}

// RecordOutcome implements contracts.AuditRecorder
func (w *MemoryWriter) RecordOutcome(ctx context.Context, runID string, outcome *contracts.EvaluationOutcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := runID + "/" + outcome.InstanceID
	if _, exists := w.outcomes[key]; exists {
		return fmt.Errorf("%w: %s", contracts.ErrDuplicateSnapshot, key)
	}
	w.outcomes[key] = NewOutputRecord(runID, outcome)
	return nil
}

// RecordRun implements contracts.AuditRecorder
func (w *MemoryWriter) RecordRun(ctx context.Context, run *contracts.ConsultationRun) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.runs[run.RunID]; exists {
		return fmt.Errorf("%w: run %s", contracts.ErrDuplicateSnapshot, run.RunID)
	}
	copied := *run
	w.runs[run.RunID] = &copied
	return nil
}

// Snapshots returns stored requests in write order
func (w *MemoryWriter) Snapshots() []Persisted {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Persisted, 0, len(w.order))
	for _, key := range w.order {
		out = append(out, w.requests[key])
	}
	return out
}

// Snapshot returns the stored request of an instance in a run
func (w *MemoryWriter) Snapshot(runID, instanceID string) (Persisted, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, key := range w.order {
		p := w.requests[key]
		if p.Request.RunID == runID && p.Request.InstanceID == instanceID {
			return p, true
		}
	}
	return Persisted{}, false
}

// Output returns the recorded raw output of an instance in a run
func (w *MemoryWriter) Output(runID, instanceID string) (*OutputRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.outcomes[runID+"/"+instanceID]
	return rec, ok
}

// Run returns a recorded run
func (w *MemoryWriter) Run(runID string) (*contracts.ConsultationRun, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	run, ok := w.runs[runID]
	return run, ok
}
