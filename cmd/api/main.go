package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"compliance-lab/internal/api"
	"compliance-lab/internal/api/handlers"
	apimiddleware "compliance-lab/internal/api/middleware"
	"compliance-lab/internal/config"
	"compliance-lab/internal/domain/services"
	grpchealth "compliance-lab/internal/grpc/health"
	"compliance-lab/internal/infrastructure/cache"
	"compliance-lab/internal/infrastructure/database"
	"compliance-lab/internal/infrastructure/store"
	"compliance-lab/internal/streaming"
	"compliance-lab/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Str("storage", cfg.Storage.Backend).
		Msg("starting compliance analytics")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Record store
	recordStore, db, err := initStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize record store")
	}
	if db != nil {
		defer db.Close()
	}

	// Optional Redis for analytics caching and shared rate limits
	var (
		redisCache  *cache.RedisCache
		resultCache services.ResultCache
		limiter     apimiddleware.WindowLimiter
		cachePinger handlers.Pinger
	)
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without cache")
		} else {
			defer redisCache.Close()
			resultCache = redisCache
			limiter = redisCache
			cachePinger = redisCache
		}
	}

	// Record change events
	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, record events stay local")
		}
	}
	eventBus := streaming.NewEventBus(natsPublisher, log)
	defer eventBus.Close()
	log.Info().Bool("nats_enabled", natsPublisher != nil).Msg("event bus initialized")

	// Services
	engine := services.NewAnalyticsEngine(recordStore, resultCache, cfg.Analytics, log)
	records := services.NewRecordService(recordStore, eventBus, log)
	evidence := services.NewEvidenceService(recordStore, eventBus, log)

	if cfg.Storage.Initialize {
		if err := records.Initialize(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize collections")
		}
	}

	if resultCache != nil {
		invalidator := services.NewCacheInvalidator(engine, eventBus, log)
		go invalidator.Run(ctx)
	}

	// Files edited outside this process
	if fs, ok := recordStore.(*store.FileStore); ok && cfg.Storage.Watch {
		watcher, err := store.NewWatcher(fs.Dir(), 0, func(collection string) {
			event := streaming.NewRecordEvent(streaming.EventTypeCollectionChanged, collection, "")
			if err := eventBus.Publish(ctx, event); err != nil {
				log.Warn().Err(err).Str("collection", collection).Msg("failed to publish change event")
			}
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to watch data directory")
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("data directory watcher stopped")
				}
			}()
		}
	}

	// Initialize handlers
	h := handlers.NewHandlers(handlers.Dependencies{
		Version:   cfg.App.Version,
		Analytics: engine,
		Records:   records,
		Evidence:  evidence,
		Store:     recordStore,
		Cache:     cachePinger,
		Logger:    log,
	})

	// Create router
	router := api.NewRouter(*cfg, h, limiter, log)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC health server
	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gRPC listener")
	}

	grpcServer := grpc.NewServer()
	probes := map[string]grpchealth.Probe{"store": recordStore}
	if redisCache != nil {
		probes["redis"] = redisCache
	}
	checker := grpchealth.Register(grpcServer, probes, 0, log)
	go checker.Run(ctx)

	go func() {
		log.Info().Str("addr", grpcListener.Addr().String()).Msg("starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Cancel context to stop background services
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	grpcServer.GracefulStop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("shutdown complete")
}

// initStore opens the configured record store backend. The database handle
// is returned so the caller can close it.
func initStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, *database.PostgresDB, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store.NewPostgresStore(db, log), db, nil
	default:
		fs, err := store.NewFileStore(cfg.Storage.DataDir, log)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	}
}
