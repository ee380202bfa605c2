package handlers

import (
	"compliance-lab/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health    *HealthHandler
	Analytics *AnalyticsHandler
	Records   *RecordsHandler
	Evidence  *EvidenceHandler
}

// Dependencies holds dependencies for handlers
type Dependencies struct {
	Version   string
	Analytics AnalyticsService
	Records   RecordService
	Evidence  EvidenceService
	Store     Pinger
	Cache     Pinger // nil when Redis is disabled
	Logger    *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Store, deps.Cache, deps.Logger),
		Analytics: NewAnalyticsHandler(deps.Analytics, deps.Logger),
		Records:   NewRecordsHandler(deps.Records, deps.Logger),
		Evidence:  NewEvidenceHandler(deps.Evidence, deps.Logger),
	}
}
