package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"compliance-lab/internal/config"
	"compliance-lab/internal/domain/models"
	"compliance-lab/internal/infrastructure/cache"
	"compliance-lab/internal/infrastructure/store"
	"compliance-lab/internal/metrics"
	"compliance-lab/pkg/logger"
)

// Analytics view names, used for cache keys, metrics and logs
const (
	ViewComplianceScore = "compliance_score"
	ViewGapAnalysis     = "gap_analysis"
	ViewRiskAssessment  = "risk_assessment"
	ViewTimeline        = "implementation_timeline"
	ViewFrameworkScores = "framework_scores"
)

// AnalyticsViews lists every cached view
var AnalyticsViews = []string{
	ViewComplianceScore,
	ViewGapAnalysis,
	ViewRiskAssessment,
	ViewTimeline,
	ViewFrameworkScores,
}

const (
	msgNoAssessments  = "No assessments found"
	msgCorruptRecords = "Invalid JSON in assessments"
)

// ResultCache stores computed analytics views between requests
type ResultCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Result is an analytics view plus where its data came from. Reason is
// set only for demo outcomes.
type Result[T any] struct {
	Value  T                     `json:"value"`
	Source models.DataSource     `json:"source"`
	Reason models.FallbackReason `json:"reason,omitempty"`
}

func live[T any](v T) Result[T] {
	return Result[T]{Value: v, Source: models.SourceLive}
}

// snapshot is the flattened control view for one analytics call
type snapshot struct {
	controls []models.FlatControl
	reason   models.FallbackReason
}

// AnalyticsEngine derives compliance views from stored assessments
type AnalyticsEngine struct {
	store  store.Store
	cache  ResultCache
	config config.AnalyticsConfig
	logger *logger.Logger

	// generation is bumped by Invalidate; a compute that started under an
	// older generation must not write its result back.
	generation atomic.Uint64
}

// NewAnalyticsEngine creates a new AnalyticsEngine. rc may be nil.
func NewAnalyticsEngine(s store.Store, rc ResultCache, cfg config.AnalyticsConfig, log *logger.Logger) *AnalyticsEngine {
	return &AnalyticsEngine{
		store:  s,
		cache:  rc,
		config: cfg,
		logger: log.WithComponent("analytics"),
	}
}

// ComplianceScore returns overall, implementation and testing rates
func (e *AnalyticsEngine) ComplianceScore(ctx context.Context) (Result[models.ComplianceScore], error) {
	return cached(ctx, e, ViewComplianceScore, func(snap snapshot) Result[models.ComplianceScore] {
		switch snap.reason {
		case models.ReasonAbsent:
			return Result[models.ComplianceScore]{Value: models.DemoScoreAbsent(), Source: models.SourceDemo, Reason: snap.reason}
		case models.ReasonCorrupt:
			return Result[models.ComplianceScore]{Value: models.DemoScoreCorrupt(), Source: models.SourceDemo, Reason: snap.reason}
		}
		return live(CalculateScore(snap.controls))
	})
}

// GapAnalysis returns up to MaxGaps controls needing attention
func (e *AnalyticsEngine) GapAnalysis(ctx context.Context) (Result[[]models.Gap], error) {
	return cached(ctx, e, ViewGapAnalysis, func(snap snapshot) Result[[]models.Gap] {
		switch snap.reason {
		case models.ReasonAbsent:
			return Result[[]models.Gap]{Value: models.DemoGapsAbsent(), Source: models.SourceDemo, Reason: snap.reason}
		case models.ReasonCorrupt:
			return Result[[]models.Gap]{Value: models.DemoGapsCorrupt(), Source: models.SourceDemo, Reason: snap.reason}
		}

		gaps := FindGaps(snap.controls, MaxGaps)
		if len(gaps) == 0 && e.config.GapPlaceholder {
			return Result[[]models.Gap]{Value: []models.Gap{models.PlaceholderGap()}, Source: models.SourcePlaceholder}
		}
		return live(gaps)
	})
}

// RiskAssessment returns the risk level distribution
func (e *AnalyticsEngine) RiskAssessment(ctx context.Context) (Result[models.RiskAssessment], error) {
	return cached(ctx, e, ViewRiskAssessment, func(snap snapshot) Result[models.RiskAssessment] {
		ra := DistributeRisk(snap.controls)
		if snap.reason == models.ReasonNone {
			return live(ra)
		}
		ra.Message = fallbackMessage(snap.reason)
		return Result[models.RiskAssessment]{Value: ra, Source: models.SourceDemo, Reason: snap.reason}
	})
}

// ImplementationTimeline returns controls bucketed by creation month
func (e *AnalyticsEngine) ImplementationTimeline(ctx context.Context) (Result[models.ImplementationTimeline], error) {
	return cached(ctx, e, ViewTimeline, func(snap snapshot) Result[models.ImplementationTimeline] {
		tl := BucketTimeline(snap.controls)
		if snap.reason == models.ReasonNone {
			return live(tl)
		}
		tl.Message = fallbackMessage(snap.reason)
		return Result[models.ImplementationTimeline]{Value: tl, Source: models.SourceDemo, Reason: snap.reason}
	})
}

// FrameworkBreakdown returns the implementation rate per framework
func (e *AnalyticsEngine) FrameworkBreakdown(ctx context.Context) (Result[models.FrameworkBreakdown], error) {
	return cached(ctx, e, ViewFrameworkScores, func(snap snapshot) Result[models.FrameworkBreakdown] {
		fb := FrameworkScores(snap.controls)
		if snap.reason == models.ReasonNone {
			return live(fb)
		}
		fb.Message = fallbackMessage(snap.reason)
		return Result[models.FrameworkBreakdown]{Value: fb, Source: models.SourceDemo, Reason: snap.reason}
	})
}

// Trends returns the static trend series
func (e *AnalyticsEngine) Trends() models.TrendSeries {
	return models.DemoTrends()
}

// Invalidate drops every cached view
func (e *AnalyticsEngine) Invalidate(ctx context.Context) error {
	e.generation.Add(1)
	if e.cache == nil {
		return nil
	}
	keys := make([]string, 0, len(AnalyticsViews))
	for _, view := range AnalyticsViews {
		keys = append(keys, cache.AnalyticsKey(view))
	}
	return e.cache.Delete(ctx, keys...)
}

// cached serves a view from the result cache when possible, otherwise it
// loads a snapshot and computes. Demo outcomes are never cached so the
// live view appears as soon as the store is repaired.
func cached[T any](ctx context.Context, e *AnalyticsEngine, view string, compute func(snapshot) Result[T]) (Result[T], error) {
	key := cache.AnalyticsKey(view)

	if e.cache != nil {
		var hit Result[T]
		err := e.cache.GetJSON(ctx, key, &hit)
		switch {
		case err == nil:
			return hit, nil
		case !cache.IsMiss(err):
			e.logger.Debug().Err(err).Str("view", view).Msg("cache read failed")
		}
	}

	gen := e.generation.Load()
	snap, err := e.snapshot(ctx)
	if err != nil {
		var zero Result[T]
		return zero, fmt.Errorf("%s: %w", view, err)
	}

	res := compute(snap)
	if res.Source != models.SourceLive {
		metrics.ObserveFallback(view, fallbackLabel(res))
		e.logger.Warn().
			Str("view", view).
			Str("source", string(res.Source)).
			Str("reason", string(res.Reason)).
			Msg("serving fallback analytics")
	}

	if e.cache != nil && res.Source != models.SourceDemo && e.config.CacheTTL > 0 {
		if e.generation.Load() != gen {
			e.logger.Debug().Str("view", view).Msg("invalidated during compute, not caching")
			return res, nil
		}
		if err := e.cache.SetJSON(ctx, key, res, e.config.CacheTTL); err != nil {
			e.logger.Debug().Err(err).Str("view", view).Msg("cache write failed")
		}
		// an Invalidate that raced the write above may have deleted first
		if e.generation.Load() != gen {
			if err := e.cache.Delete(ctx, key); err != nil {
				e.logger.Debug().Err(err).Str("view", view).Msg("cache delete failed")
			}
		}
	}
	return res, nil
}

// snapshot loads and flattens the records every view is computed from.
// Only the assessments collection decides the fallback reason.
func (e *AnalyticsEngine) snapshot(ctx context.Context) (snapshot, error) {
	assessments, skipped, err := store.LoadAs[models.AssessmentRecord](ctx, e.store, models.CollectionAssessments)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return snapshot{reason: models.ReasonAbsent}, nil
	case errors.Is(err, store.ErrCorrupt):
		e.logger.Warn().Err(err).Str("collection", models.CollectionAssessments).Msg("collection is corrupt")
		return snapshot{reason: models.ReasonCorrupt}, nil
	case err != nil:
		return snapshot{}, err
	}
	if skipped > 0 {
		e.logger.Debug().Int("skipped", skipped).Str("collection", models.CollectionAssessments).Msg("skipped malformed records")
	}

	controls := models.FlattenAssessments(assessments)

	if e.config.IncludeStandaloneControls {
		standalone, skipped, err := store.LoadAs[models.ControlRecord](ctx, e.store, models.CollectionControls)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case errors.Is(err, store.ErrCorrupt):
			e.logger.Warn().Err(err).Str("collection", models.CollectionControls).Msg("ignoring corrupt collection")
		case err != nil:
			return snapshot{}, err
		default:
			if skipped > 0 {
				e.logger.Debug().Int("skipped", skipped).Str("collection", models.CollectionControls).Msg("skipped malformed records")
			}
			controls = append(controls, models.FlattenControls(standalone)...)
		}
	}

	return snapshot{controls: controls}, nil
}

func fallbackMessage(reason models.FallbackReason) string {
	if reason == models.ReasonCorrupt {
		return msgCorruptRecords
	}
	return msgNoAssessments
}

func fallbackLabel[T any](res Result[T]) string {
	if res.Reason != models.ReasonNone {
		return string(res.Reason)
	}
	return string(res.Source)
}
