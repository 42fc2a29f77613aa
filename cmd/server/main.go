package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ikkim/catalog-admin/config"
	"github.com/ikkim/catalog-admin/internal/app/controller"
	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/repository"
	"github.com/ikkim/catalog-admin/internal/app/service"
	"github.com/ikkim/catalog-admin/internal/cache"
	"github.com/ikkim/catalog-admin/internal/db"
	"github.com/ikkim/catalog-admin/internal/middleware"
	"github.com/ikkim/catalog-admin/internal/router"
	"github.com/ikkim/catalog-admin/internal/scheduler"
	"github.com/ikkim/catalog-admin/internal/storage"
	ws "github.com/ikkim/catalog-admin/internal/websocket"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
	"github.com/ikkim/catalog-admin/pkg/logger"
	"github.com/ikkim/catalog-admin/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	if err := logger.Initialize(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		EnableColor: cfg.Server.Environment == "development",
	}); err != nil {
		logger.Fatal("Failed to initialize logger", err)
	}

	logger.Info("Starting catalog admin server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   cfg.Log.Level,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Vocabulary cache: Redis when enabled, in-process otherwise
	var vocabCache cache.Cache
	if cfg.Redis.Enabled {
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Fatal("Failed to initialize Redis", err)
		}
		defer func() {
			if err := redis.Close(); err != nil {
				logger.Error("Failed to close Redis connection", err)
			}
		}()
		vocabCache = cache.NewRedisCache(redis.GetClient(), cfg.Session.VocabularyTTL)
	} else {
		logger.Warn("Redis disabled, using in-memory vocabulary cache")
		vocabCache = cache.NewMemoryCache(cfg.Session.VocabularyTTL)
	}

	store, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize storage", err)
	}

	catalog, err := catalogapi.NewClient(catalogapi.Config{
		BaseURL:      cfg.Catalog.BaseURL,
		ServiceToken: cfg.Catalog.ServiceToken,
		Timeout:      cfg.Catalog.Timeout,
	})
	if err != nil {
		logger.Fatal("Failed to create catalog API client", err)
	}

	// Initialize repositories
	draftRepo := repository.NewDraftRepository(db.GetDB())
	batchRepo := repository.NewImportBatchRepository(db.GetDB())
	uploadRepo := repository.NewStagedUploadRepository(db.GetDB())

	hub := ws.NewHub()
	go hub.Run(ctx)

	// Initialize services
	uploadStager := service.NewUploadStager(store, uploadRepo)
	vocabularyService := service.NewVocabularyService(catalog, vocabCache, cfg.Session.VocabularyTTL)
	editorService := service.NewVariantEditorService(draftRepo, uploadStager, vocabularyService, catalog, model.ImageLimits{
		MaxPerColor: cfg.Upload.MaxImagesPerColor,
		MaxBytes:    cfg.Upload.MaxImageBytes,
	})
	resolverService := service.NewDetailResolverService(catalog, vocabularyService)
	importService := service.NewImportService(batchRepo, uploadStager, catalog, hub, cfg.Upload.MaxImportBytes)

	// Warm the vocabulary; a cold start is retried by the scheduler
	if _, err := vocabularyService.Refresh(ctx); err != nil {
		logger.Warn("Initial vocabulary load failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if cfg.Scheduler.Enabled {
		housekeeping := scheduler.NewHousekeepingScheduler(cfg.Scheduler, cfg.Session, scheduler.Services{
			Vocabulary: vocabularyService,
			Resolver:   resolverService,
			Editor:     editorService,
			Imports:    importService,
			Uploads:    uploadStager,
		})
		if err := housekeeping.Start(); err != nil {
			logger.Fatal("Failed to start housekeeping scheduler", err)
		}
		defer housekeeping.Stop()
	}

	// Setup router
	r := router.NewRouter(
		controller.NewVocabularyController(vocabularyService),
		controller.NewDraftController(editorService),
		controller.NewDetailSessionController(resolverService),
		controller.NewImportController(importService, hub, cfg.CORS.AllowedOrigins),
		middleware.NewAuthMiddleware(cfg.JWT.Secret),
		cfg,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
			"storage": fmt.Sprint(store),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}

	logger.Info("Server stopped successfully")
}
