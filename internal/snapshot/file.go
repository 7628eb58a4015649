package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// FileWriter stores snapshots as one JSON file per key:
//
//	<dir>/<run_id>/<instance_id>-<created_at unix nanos>.json
//
// Files are created with O_EXCL so an existing snapshot is never overwritten.
type FileWriter struct {
	dir string
}

// NewFileWriter creates a file-backed snapshot writer
func NewFileWriter(dir string) *FileWriter {
	return &FileWriter{dir: dir}
}

// Persist implements contracts.SnapshotWriter
func (w *FileWriter) Persist(ctx context.Context, req *contracts.EvaluationRequest) error {
	name := fmt.Sprintf("%s-%d.json", safeName(req.InstanceID), req.CreatedAt.UnixNano())
	return w.writeNew(req.RunID, name, req)
}

// RecordOutcome implements contracts.AuditRecorder
func (w *FileWriter) RecordOutcome(ctx context.Context, runID string, outcome *contracts.EvaluationOutcome) error {
	name := fmt.Sprintf("%s.output.json", safeName(outcome.InstanceID))
	return w.writeNew(runID, name, NewOutputRecord(runID, outcome))
}

// RecordRun implements contracts.AuditRecorder
func (w *FileWriter) RecordRun(ctx context.Context, run *contracts.ConsultationRun) error {
	return w.writeNew(run.RunID, "run.json", run)
}

func (w *FileWriter) writeNew(runID, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	runDir := filepath.Join(w.dir, safeName(runID))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(runDir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", contracts.ErrDuplicateSnapshot, path)
	}
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	// 감사 목적: 디스패치 전에 디스크까지 반영
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	return f.Close()
}

// safeName escapes an id into a single path element.
// The escape is reversible, so distinct ids never share a file.
func safeName(s string) string {
	escaped := url.PathEscape(s)
	if escaped == "." || escaped == ".." {
		return strings.ReplaceAll(escaped, ".", "%2E")
	}
	return escaped
}
