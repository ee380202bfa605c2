package handlers

import (
	"context"
	"net/http"

	"compliance-lab/internal/domain/models"
	"compliance-lab/internal/domain/services"
	"compliance-lab/pkg/logger"
)

// AnalyticsService is the analytics engine as seen by the HTTP layer
type AnalyticsService interface {
	ComplianceScore(ctx context.Context) (services.Result[models.ComplianceScore], error)
	GapAnalysis(ctx context.Context) (services.Result[[]models.Gap], error)
	RiskAssessment(ctx context.Context) (services.Result[models.RiskAssessment], error)
	ImplementationTimeline(ctx context.Context) (services.Result[models.ImplementationTimeline], error)
	FrameworkBreakdown(ctx context.Context) (services.Result[models.FrameworkBreakdown], error)
	Trends() models.TrendSeries
}

// AnalyticsHandler serves the analytics views. Every endpoint answers 200;
// unexpected failures are logged and replaced with demo data.
type AnalyticsHandler struct {
	engine AnalyticsService
	logger *logger.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(engine AnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		engine: engine,
		logger: log.WithComponent("analytics-handler"),
	}
}

// ComplianceScore handles GET /api/analytics/compliance-score
func (h *AnalyticsHandler) ComplianceScore(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.ComplianceScore(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("compliance score failed, serving demo data")
		writeAnalytics(w, models.SourceDemo, models.DemoScoreFailure(err))
		return
	}
	writeAnalytics(w, res.Source, res.Value)
}

// GapAnalysis handles GET /api/analytics/gap-analysis
func (h *AnalyticsHandler) GapAnalysis(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.GapAnalysis(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("gap analysis failed, serving demo data")
		writeAnalytics(w, models.SourceDemo, models.DemoGapsFailure())
		return
	}
	writeAnalytics(w, res.Source, res.Value)
}

// RiskAssessment handles GET /api/analytics/risk-assessment
func (h *AnalyticsHandler) RiskAssessment(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.RiskAssessment(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("risk assessment failed")
		empty := services.DistributeRisk(nil)
		empty.Message = "Risk assessment unavailable"
		writeAnalytics(w, models.SourceDemo, empty)
		return
	}
	writeAnalytics(w, res.Source, res.Value)
}

// ImplementationTimeline handles GET /api/analytics/implementation-timeline
func (h *AnalyticsHandler) ImplementationTimeline(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.ImplementationTimeline(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("implementation timeline failed")
		empty := services.BucketTimeline(nil)
		empty.Message = "Implementation timeline unavailable"
		writeAnalytics(w, models.SourceDemo, empty)
		return
	}
	writeAnalytics(w, res.Source, res.Value)
}

// FrameworkScores handles GET /api/analytics/framework-scores
func (h *AnalyticsHandler) FrameworkScores(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.FrameworkBreakdown(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("framework breakdown failed")
		empty := services.FrameworkScores(nil)
		empty.Message = "Framework scores unavailable"
		writeAnalytics(w, models.SourceDemo, empty)
		return
	}
	writeAnalytics(w, res.Source, res.Value)
}

// Trends handles GET /api/analytics/trends
func (h *AnalyticsHandler) Trends(w http.ResponseWriter, r *http.Request) {
	writeAnalytics(w, models.SourceDemo, h.engine.Trends())
}
