package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"compliance-lab/internal/api/handlers"
	apimiddleware "compliance-lab/internal/api/middleware"
	"compliance-lab/internal/config"
	"compliance-lab/internal/metrics"
	"compliance-lab/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	limiter  apimiddleware.WindowLimiter
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. limiter may be nil, in which
// case rate limiting is per process.
func NewRouter(cfg config.Config, h *handlers.Handlers, limiter apimiddleware.WindowLimiter, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		limiter:  limiter,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	if r.config.Metrics.Enabled {
		router.Use(apimiddleware.Metrics)
	}
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		ExposedHeaders:   []string{handlers.HeaderDataSource},
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Public routes
	router.Group(func(pub chi.Router) {
		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)
		if r.config.Metrics.Enabled {
			pub.Handle(r.config.Metrics.Path, metrics.Handler())
		}
	})

	router.Route("/api", func(api chi.Router) {
		if r.config.RateLimit.Enabled {
			api.Use(apimiddleware.RateLimiter(r.limiter, r.config.RateLimit, r.logger))
		}

		// Analytics views always answer 200
		api.Route("/analytics", func(an chi.Router) {
			an.Get("/compliance-score", r.handlers.Analytics.ComplianceScore)
			an.Get("/gap-analysis", r.handlers.Analytics.GapAnalysis)
			an.Get("/risk-assessment", r.handlers.Analytics.RiskAssessment)
			an.Get("/implementation-timeline", r.handlers.Analytics.ImplementationTimeline)
			an.Get("/trends", r.handlers.Analytics.Trends)
			an.Get("/framework-scores", r.handlers.Analytics.FrameworkScores)
		})

		// Reads
		api.Get("/assessments", r.handlers.Records.ListAssessments)
		api.Get("/controls", r.handlers.Records.ListControls)
		api.Get("/frameworks", r.handlers.Records.ListFrameworks)
		api.Get("/audit-plans", r.handlers.Records.ListAuditPlans)
		api.Get("/reports", r.handlers.Records.ListReports)
		api.Get("/evidence", r.handlers.Evidence.List)
		api.Get("/evidence/stats", r.handlers.Evidence.Stats)
		api.Get("/evidence/{controlID}", r.handlers.Evidence.ForControl)

		// Writes
		api.Group(func(w chi.Router) {
			w.Use(apimiddleware.APIKeyAuth(r.config.Auth.APIKeys))

			w.Post("/assessments", r.handlers.Records.CreateAssessment)
			w.Post("/controls", r.handlers.Records.AddControl)
			w.Post("/generate-controls", r.handlers.Records.GenerateControls)
			w.Post("/audit-plans", r.handlers.Records.AddAuditPlan)
			w.Post("/reports/export/{format}", r.handlers.Records.ExportReport)
			w.Post("/evidence", r.handlers.Evidence.Add)
			w.Put("/evidence/{controlID}/{evidenceID}/status", r.handlers.Evidence.UpdateStatus)
		})
	})

	return router
}
