package services

import (
	"context"

	"compliance-lab/internal/domain/models"
	"compliance-lab/internal/streaming"
	"compliance-lab/pkg/logger"
)

// Subscriber is the part of the event bus the invalidator consumes
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *streaming.RecordEvent, func())
}

// CacheInvalidator drops cached analytics whenever a collection the
// engine reads from changes, locally or on another instance.
type CacheInvalidator struct {
	engine *AnalyticsEngine
	bus    Subscriber
	logger *logger.Logger
}

// NewCacheInvalidator creates a new CacheInvalidator
func NewCacheInvalidator(engine *AnalyticsEngine, bus Subscriber, log *logger.Logger) *CacheInvalidator {
	return &CacheInvalidator{
		engine: engine,
		bus:    bus,
		logger: log.WithComponent("cache-invalidator"),
	}
}

// Run consumes events until ctx is cancelled
func (ci *CacheInvalidator) Run(ctx context.Context) {
	events, unsubscribe := ci.bus.Subscribe(ctx)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if !affectsAnalytics(event.Collection) {
				continue
			}
			if err := ci.engine.Invalidate(ctx); err != nil {
				ci.logger.Warn().Err(err).Str("collection", event.Collection).Msg("failed to invalidate analytics cache")
				continue
			}
			ci.logger.Debug().
				Str("collection", event.Collection).
				Str("event", string(event.Type)).
				Msg("analytics cache invalidated")
		}
	}
}

func affectsAnalytics(collection string) bool {
	return collection == models.CollectionAssessments || collection == models.CollectionControls
}
