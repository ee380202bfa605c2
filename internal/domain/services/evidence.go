package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"compliance-lab/internal/domain/models"
	"compliance-lab/internal/infrastructure/store"
	"compliance-lab/internal/streaming"
	"compliance-lab/pkg/logger"
)

// EvidenceService tracks evidence files attached to controls and their
// review state. Records are stored flat and grouped by control on read.
type EvidenceService struct {
	store  store.Store
	events EventPublisher
	logger *logger.Logger
	now    func() time.Time
}

// NewEvidenceService creates a new EvidenceService. events may be nil.
func NewEvidenceService(s store.Store, events EventPublisher, log *logger.Logger) *EvidenceService {
	return &EvidenceService{
		store:  s,
		events: events,
		logger: log.WithComponent("evidence"),
		now:    time.Now,
	}
}

// Add records a new evidence item in pending_review state
func (s *EvidenceService) Add(ctx context.Context, req models.NewEvidenceRequest) (*models.EvidenceRecord, error) {
	req.ControlID = strings.TrimSpace(req.ControlID)
	req.Filename = strings.TrimSpace(req.Filename)
	if req.ControlID == "" {
		return nil, fmt.Errorf("%w: control_id is required", ErrInvalidInput)
	}
	if req.Filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}

	record := &models.EvidenceRecord{
		ID:         "evid_" + uuid.New().String(),
		ControlID:  req.ControlID,
		Filename:   req.Filename,
		FilePath:   req.FilePath,
		FileType:   req.FileType,
		UploadedBy: req.UploadedBy,
		UploadDate: s.now().UTC(),
		Status:     models.EvidencePendingReview,
	}

	if err := store.Append(ctx, s.store, models.CollectionEvidence, record); err != nil {
		return nil, fmt.Errorf("failed to save evidence: %w", err)
	}

	s.logger.Info().
		Str("evidence_id", record.ID).
		Str("control_id", record.ControlID).
		Msg("evidence added")
	s.publish(ctx, streaming.EventTypeRecordCreated, record.ID)
	return record, nil
}

// All returns every evidence record grouped by control id
func (s *EvidenceService) All(ctx context.Context) (map[string][]models.EvidenceRecord, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]models.EvidenceRecord)
	for _, r := range records {
		grouped[r.ControlID] = append(grouped[r.ControlID], r)
	}
	return grouped, nil
}

// ForControl returns the evidence attached to one control in upload order
func (s *EvidenceService) ForControl(ctx context.Context, controlID string) ([]models.EvidenceRecord, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.EvidenceRecord{}
	for _, r := range records {
		if r.ControlID == controlID {
			out = append(out, r)
		}
	}
	return out, nil
}

// UpdateStatus records a review decision. ErrNotFound is returned when no
// evidence with that id belongs to the control.
func (s *EvidenceService) UpdateStatus(ctx context.Context, controlID, evidenceID string, status models.EvidenceStatus) (*models.EvidenceRecord, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	var updated *models.EvidenceRecord
	err := s.store.Update(ctx, models.CollectionEvidence, func(items []json.RawMessage) ([]json.RawMessage, error) {
		for i, raw := range items {
			var r models.EvidenceRecord
			if err := json.Unmarshal(raw, &r); err != nil {
				continue
			}
			if r.ID != evidenceID || r.ControlID != controlID {
				continue
			}

			reviewed := s.now().UTC()
			r.Status = status
			r.ReviewDate = &reviewed

			encoded, err := json.Marshal(r)
			if err != nil {
				return nil, err
			}
			items[i] = encoded
			updated = &r
			return items, nil
		}
		return nil, fmt.Errorf("%w: evidence %s for control %s", ErrNotFound, evidenceID, controlID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("evidence_id", evidenceID).
		Str("status", string(status)).
		Msg("evidence reviewed")
	s.publish(ctx, streaming.EventTypeRecordUpdated, evidenceID)
	return updated, nil
}

// Stats summarizes review progress across all evidence
func (s *EvidenceService) Stats(ctx context.Context) (models.EvidenceStats, error) {
	records, err := s.load(ctx)
	if err != nil {
		return models.EvidenceStats{}, err
	}

	var stats models.EvidenceStats
	for _, r := range records {
		stats.TotalEvidence++
		switch r.Status {
		case models.EvidenceApproved:
			stats.ApprovedEvidence++
		case models.EvidencePendingReview:
			stats.PendingEvidence++
		}
	}
	if stats.TotalEvidence > 0 {
		stats.ApprovalRate = round1(float64(stats.ApprovedEvidence) / float64(stats.TotalEvidence) * 100)
	}
	return stats, nil
}

// load returns all evidence; an absent or corrupt collection reads as empty
func (s *EvidenceService) load(ctx context.Context) ([]models.EvidenceRecord, error) {
	records, skipped, err := store.LoadAs[models.EvidenceRecord](ctx, s.store, models.CollectionEvidence)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return []models.EvidenceRecord{}, nil
	case errors.Is(err, store.ErrCorrupt):
		s.logger.Warn().Err(err).Msg("evidence collection is corrupt")
		return []models.EvidenceRecord{}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load evidence: %w", err)
	}
	if skipped > 0 {
		s.logger.Debug().Int("skipped", skipped).Msg("skipped malformed evidence records")
	}
	return records, nil
}

func (s *EvidenceService) publish(ctx context.Context, eventType streaming.EventType, recordID string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, streaming.NewRecordEvent(eventType, models.CollectionEvidence, recordID)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish evidence event")
	}
}
