package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"compliance-lab/internal/domain/models"
	"compliance-lab/internal/domain/services"
	"compliance-lab/pkg/logger"
)

// RecordService is the record store facade used by the CRUD endpoints
type RecordService interface {
	List(ctx context.Context, collection string) ([]json.RawMessage, error)
	CreateAssessment(ctx context.Context, req models.NewAssessmentRequest) (*models.AssessmentRecord, error)
	AddControl(ctx context.Context, body []byte) (json.RawMessage, error)
	AddAuditPlan(ctx context.Context, body []byte) (json.RawMessage, error)
	ExportReport(ctx context.Context, format string) (*models.ReportRecord, error)
}

// RecordsHandler handles assessments, controls, audit plans and reports
type RecordsHandler struct {
	records RecordService
	logger  *logger.Logger
}

// NewRecordsHandler creates a new RecordsHandler
func NewRecordsHandler(records RecordService, log *logger.Logger) *RecordsHandler {
	return &RecordsHandler{
		records: records,
		logger:  log.WithComponent("records-handler"),
	}
}

func (h *RecordsHandler) list(w http.ResponseWriter, r *http.Request, collection string) {
	items, err := h.records.List(r.Context(), collection)
	if err != nil {
		writeServiceError(w, h.logger.WithCollection(collection), err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListAssessments handles GET /api/assessments
func (h *RecordsHandler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.CollectionAssessments)
}

// CreateAssessment handles POST /api/assessments
func (h *RecordsHandler) CreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req models.NewAssessmentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	assessment, err := h.records.CreateAssessment(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, assessment)
}

// ListControls handles GET /api/controls
func (h *RecordsHandler) ListControls(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.CollectionControls)
}

// AddControl handles POST /api/controls
func (h *RecordsHandler) AddControl(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	control, err := h.records.AddControl(r.Context(), body)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, control)
}

// GenerateControls handles POST /api/generate-controls
func (h *RecordsHandler) GenerateControls(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateControlsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, services.GenerateControls(req))
}

// ListFrameworks handles GET /api/frameworks
func (h *RecordsHandler) ListFrameworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Frameworks)
}

// ListAuditPlans handles GET /api/audit-plans
func (h *RecordsHandler) ListAuditPlans(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.CollectionAuditPlans)
}

// AddAuditPlan handles POST /api/audit-plans
func (h *RecordsHandler) AddAuditPlan(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	plan, err := h.records.AddAuditPlan(r.Context(), body)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// ListReports handles GET /api/reports
func (h *RecordsHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.CollectionReports)
}

// ExportReport handles POST /api/reports/export/{format}
func (h *RecordsHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.records.ExportReport(r.Context(), chi.URLParam(r, "format"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}
