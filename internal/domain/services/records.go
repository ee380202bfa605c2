package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"compliance-lab/internal/domain/models"
	"compliance-lab/internal/infrastructure/store"
	"compliance-lab/internal/streaming"
	"compliance-lab/pkg/logger"
)

// EventPublisher announces record changes to other components
type EventPublisher interface {
	Publish(ctx context.Context, event *streaming.RecordEvent) error
}

// RecordService manages assessments, controls, audit plans and report
// metadata in the record store.
type RecordService struct {
	store  store.Store
	events EventPublisher
	logger *logger.Logger
	now    func() time.Time
}

// NewRecordService creates a new RecordService. events may be nil.
func NewRecordService(s store.Store, events EventPublisher, log *logger.Logger) *RecordService {
	return &RecordService{
		store:  s,
		events: events,
		logger: log.WithComponent("records"),
		now:    time.Now,
	}
}

// List returns a collection's items as stored. A collection that is
// absent or corrupt lists as empty.
func (s *RecordService) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	items, err := s.store.Load(ctx, collection)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return []json.RawMessage{}, nil
	case errors.Is(err, store.ErrCorrupt):
		s.logger.Warn().Err(err).Str("collection", collection).Msg("listing corrupt collection as empty")
		return []json.RawMessage{}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return items, nil
}

// CreateAssessment applies defaults, assigns an id and appends the
// assessment.
func (s *RecordService) CreateAssessment(ctx context.Context, req models.NewAssessmentRequest) (*models.AssessmentRecord, error) {
	floor, err := s.maxAssessmentID(ctx)
	if err != nil {
		return nil, err
	}

	id, err := s.store.NextSequence(ctx, models.CollectionAssessments, floor)
	if err != nil {
		return nil, fmt.Errorf("failed to assign assessment id: %w", err)
	}

	assessment := &models.AssessmentRecord{
		ID:             id,
		Name:           orDefault(strings.TrimSpace(req.Name), models.DefaultAssessmentName),
		Framework:      orDefault(strings.TrimSpace(req.Framework), models.DefaultAssessmentFramework),
		Infrastructure: req.Infrastructure,
		Controls:       req.Controls,
		CreatedAt:      s.now().UTC().Format(time.RFC3339),
	}
	if assessment.Infrastructure == nil {
		assessment.Infrastructure = []string{}
	}
	if assessment.Controls == nil {
		assessment.Controls = []models.ControlRecord{}
	}

	if err := store.Append(ctx, s.store, models.CollectionAssessments, assessment); err != nil {
		return nil, fmt.Errorf("failed to save assessment: %w", err)
	}

	s.logger.Info().
		Int64("id", assessment.ID).
		Str("framework", assessment.Framework).
		Int("controls", len(assessment.Controls)).
		Msg("assessment created")
	s.publish(ctx, streaming.EventTypeRecordCreated, models.CollectionAssessments, strconv.FormatInt(id, 10))

	return assessment, nil
}

// maxAssessmentID returns the largest id already stored, so sequences
// seeded after records were written by hand never collide with them.
func (s *RecordService) maxAssessmentID(ctx context.Context) (int64, error) {
	existing, _, err := store.LoadAs[models.AssessmentRecord](ctx, s.store, models.CollectionAssessments)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to read assessments: %w", err)
	}

	var floor int64
	for _, a := range existing {
		floor = max(floor, a.ID)
	}
	return floor, nil
}

// AddControl appends one control object as submitted
func (s *RecordService) AddControl(ctx context.Context, body []byte) (json.RawMessage, error) {
	raw, err := requireObject(body)
	if err != nil {
		return nil, err
	}

	var control models.ControlRecord
	if err := json.Unmarshal(raw, &control); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.appendRaw(ctx, models.CollectionControls, raw); err != nil {
		return nil, err
	}
	s.publish(ctx, streaming.EventTypeRecordCreated, models.CollectionControls, control.ID)
	return raw, nil
}

// AddAuditPlan appends an audit plan object as submitted
func (s *RecordService) AddAuditPlan(ctx context.Context, body []byte) (json.RawMessage, error) {
	raw, err := requireObject(body)
	if err != nil {
		return nil, err
	}
	if err := s.appendRaw(ctx, models.CollectionAuditPlans, raw); err != nil {
		return nil, err
	}
	s.publish(ctx, streaming.EventTypeRecordCreated, models.CollectionAuditPlans, "")
	return raw, nil
}

// ExportReport records metadata for a requested report. The document is
// rendered by a separate worker that picks up the download path.
func (s *RecordService) ExportReport(ctx context.Context, format string) (*models.ReportRecord, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return nil, fmt.Errorf("%w: format is required", ErrInvalidInput)
	}

	now := s.now()
	report := &models.ReportRecord{
		Format:      format,
		Timestamp:   now.Format(time.RFC3339),
		Status:      "generated",
		DownloadURL: fmt.Sprintf("/downloads/report_%s.%s", now.Format("20060102_150405"), format),
		Message:     fmt.Sprintf("%s report generated successfully", strings.ToUpper(format)),
	}

	if err := store.Append(ctx, s.store, models.CollectionReports, report); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}
	s.publish(ctx, streaming.EventTypeRecordCreated, models.CollectionReports, "")
	return report, nil
}

// Initialize creates every known collection that does not exist yet.
// Existing collections, including corrupt ones, are left untouched.
func (s *RecordService) Initialize(ctx context.Context) error {
	init, ok := s.store.(interface {
		Initialize(ctx context.Context, names ...string) error
	})
	if !ok {
		return nil
	}
	return init.Initialize(ctx, models.Collections...)
}

func (s *RecordService) appendRaw(ctx context.Context, collection string, raw json.RawMessage) error {
	err := s.store.Update(ctx, collection, func(items []json.RawMessage) ([]json.RawMessage, error) {
		return append(items, raw), nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", collection, err)
	}
	return nil
}

func (s *RecordService) publish(ctx context.Context, eventType streaming.EventType, collection, recordID string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, streaming.NewRecordEvent(eventType, collection, recordID)); err != nil {
		s.logger.Warn().Err(err).Str("collection", collection).Msg("failed to publish record event")
	}
}

// requireObject checks that body is a single JSON object and returns it
// compacted.
func requireObject(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidInput)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

// GenerateControls returns the starter control set for a framework and
// the infrastructure it runs on. Ids are "<framework>-<n>" from 1.
func GenerateControls(req models.GenerateControlsRequest) []models.ControlRecord {
	framework := orDefault(strings.TrimSpace(req.Framework), models.DefaultAssessmentFramework)

	has := make(map[string]bool, len(req.Infrastructure))
	for _, item := range req.Infrastructure {
		has[strings.ToLower(strings.TrimSpace(item))] = true
	}

	var templates []controlTemplate
	for _, t := range infrastructureControls {
		if has[t.requires] {
			templates = append(templates, t)
		}
	}
	templates = append(templates, baselineControls...)

	controls := make([]models.ControlRecord, 0, len(templates))
	for i, t := range templates {
		controls = append(controls, models.ControlRecord{
			ID:          fmt.Sprintf("%s-%d", framework, i+1),
			Name:        t.name,
			Description: t.description,
			Type:        t.kind,
			RiskLevel:   string(t.risk),
			Status:      string(models.ControlStatusNotStarted),
			TestStatus:  string(models.TestStatusNotTested),
			TestResult:  string(models.TestResultFail),
			Progress:    0,
		})
	}
	return controls
}

type controlTemplate struct {
	requires    string
	name        string
	description string
	kind        string
	risk        models.RiskLevel
}

var infrastructureControls = []controlTemplate{
	{
		requires:    "firewall",
		name:        "Firewall Configuration Management",
		description: "Ensure firewall rules are properly configured and monitored",
		kind:        "automatic",
		risk:        models.RiskHigh,
	},
	{
		requires:    "cloud",
		name:        "Cloud Security Monitoring",
		description: "Monitor cloud infrastructure for security events",
		kind:        "automatic",
		risk:        models.RiskHigh,
	},
	{
		requires:    "database",
		name:        "Database Access Controls",
		description: "Implement role-based access control for databases",
		kind:        "manual",
		risk:        models.RiskMedium,
	},
}

var baselineControls = []controlTemplate{
	{
		name:        "Security Awareness Training",
		description: "Provide regular security awareness training to employees",
		kind:        "manual",
		risk:        models.RiskMedium,
	},
	{
		name:        "Incident Response Plan",
		description: "Maintain and test incident response procedures",
		kind:        "manual",
		risk:        models.RiskHigh,
	},
}
