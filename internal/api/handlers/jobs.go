package handlers

import (
	"net/http"

	"github.com/wonny/aegis/consult/internal/scheduler"
)

// JobStatsProvider exposes scheduled job statistics
type JobStatsProvider interface {
	GetJobStats() map[string]scheduler.JobStats
}

// JobsHandler reports scheduled consultations
type JobsHandler struct {
	scheduler JobStatsProvider
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(s JobStatsProvider) *JobsHandler {
	return &JobsHandler{scheduler: s}
}

// GetStats returns statistics of every scheduled job
// GET /api/jobs
func (h *JobsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.GetJobStats())
}
