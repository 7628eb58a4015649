package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wonny/aegis/consult/internal/consult"
	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/internal/registry"
	"github.com/wonny/aegis/consult/pkg/logger"
)

// maxRequestBytes bounds a consult request body
const maxRequestBytes = 1 << 20

// ConsultHandler handles consultation API endpoints
// ⭐ SSOT: 컨설테이션 API 핸들러는 이 구조체에서만
type ConsultHandler struct {
	engine    Consulter
	instances contracts.InstanceSource
	logger    *logger.Logger
}

// Consulter runs one consultation
type Consulter interface {
	Consult(ctx context.Context, req consult.Request) (*consult.Result, error)
}

// NewConsultHandler creates a new consult handler
func NewConsultHandler(engine Consulter, instances contracts.InstanceSource, log *logger.Logger) *ConsultHandler {
	return &ConsultHandler{
		engine:    engine,
		instances: instances,
		logger:    log,
	}
}

// Consult runs a consultation and returns signals and the run summary
// POST /api/consult
//
// 200: run completed (possibly degraded)
// 400: invalid request
// 503: run aborted (registry or snapshot storage); body still carries the summary
func (h *ConsultHandler) Consult(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req consult.Request
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	if req.MarketContext != nil {
		req.MarketContext = registry.NormalizeNumbers(req.MarketContext).(map[string]interface{})
	}

	res, err := h.engine.Consult(r.Context(), req)
	if err != nil {
		var runErr *contracts.RunError
		switch {
		case errors.As(err, &runErr):
			h.logger.WithError(err).Error("Consultation aborted")
			respondJSON(w, http.StatusServiceUnavailable, res)
		case errors.Is(err, contracts.ErrConfig):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.WithError(err).Error("Consultation failed")
			respondError(w, http.StatusInternalServerError, "Consultation failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// ListInstances returns the active instances of a sector
// GET /api/instances?sector=TECH
func (h *ConsultHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	sector := r.URL.Query().Get("sector")
	if sector == "" {
		sector = contracts.SectorAll
	}

	instances, err := h.instances.ListActiveInstances(r.Context(), sector)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list instances")
		respondError(w, http.StatusServiceUnavailable, "Failed to load instances")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sector":    sector,
		"count":     len(instances),
		"instances": instances,
	})
}
