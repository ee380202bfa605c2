package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"compliance-lab/internal/domain/models"
	"compliance-lab/pkg/logger"
)

// EvidenceService is the evidence tracker as seen by the HTTP layer
type EvidenceService interface {
	Add(ctx context.Context, req models.NewEvidenceRequest) (*models.EvidenceRecord, error)
	All(ctx context.Context) (map[string][]models.EvidenceRecord, error)
	ForControl(ctx context.Context, controlID string) ([]models.EvidenceRecord, error)
	UpdateStatus(ctx context.Context, controlID, evidenceID string, status models.EvidenceStatus) (*models.EvidenceRecord, error)
	Stats(ctx context.Context) (models.EvidenceStats, error)
}

// EvidenceHandler handles evidence endpoints
type EvidenceHandler struct {
	evidence EvidenceService
	logger   *logger.Logger
}

// NewEvidenceHandler creates a new EvidenceHandler
func NewEvidenceHandler(evidence EvidenceService, log *logger.Logger) *EvidenceHandler {
	return &EvidenceHandler{
		evidence: evidence,
		logger:   log.WithComponent("evidence-handler"),
	}
}

// List handles GET /api/evidence
func (h *EvidenceHandler) List(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.evidence.All(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

// Add handles POST /api/evidence
func (h *EvidenceHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req models.NewEvidenceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.evidence.Add(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// ForControl handles GET /api/evidence/{controlID}
func (h *EvidenceHandler) ForControl(w http.ResponseWriter, r *http.Request) {
	records, err := h.evidence.ForControl(r.Context(), chi.URLParam(r, "controlID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// UpdateStatusRequest is the body of a review decision
type UpdateStatusRequest struct {
	Status models.EvidenceStatus `json:"status"`
}

// UpdateStatus handles PUT /api/evidence/{controlID}/{evidenceID}/status
func (h *EvidenceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.evidence.UpdateStatus(r.Context(),
		chi.URLParam(r, "controlID"),
		chi.URLParam(r, "evidenceID"),
		req.Status,
	)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Stats handles GET /api/evidence/stats
func (h *EvidenceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.evidence.Stats(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
