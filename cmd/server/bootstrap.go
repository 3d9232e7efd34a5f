package main

import (
	"github.com/agroc/backend/internal/config"
	"github.com/agroc/backend/internal/handlers"
	"github.com/agroc/backend/internal/metrics"
	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/internal/services"
	"github.com/agroc/backend/internal/utils"
	"github.com/agroc/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg       *config.Config
	repos     *repository.Repositories
	taskQueue services.TaskQueue
	worker    *services.Worker
	scheduler *services.ReconcileScheduler

	authHandler       *handlers.AuthHandler
	predictionHandler *handlers.PredictionHandler
	solutionHandler   *handlers.SolutionHandler
	userHandler       *handlers.UserHandler
	healthHandler     *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: storage, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	repos, err := repository.Open(cfg)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}

	if err := metrics.RegisterEntityCounts(repos.Stats); err != nil {
		logger.Warn().Err(err).Msg("Failed to register entity metrics")
	}

	authService := services.NewAuthService(repos, &cfg.JWT)
	if err := authService.CreateAdminIfNotExists(&cfg.Admin); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	// Seeded solutions are attributed to the first admin.
	var adminID uint
	if admin, err := repos.Users.FindOne(repository.UserQuery{Role: models.RoleAdmin}); err == nil && admin != nil {
		adminID = admin.ID
	}
	solutionService := services.NewSolutionService(repos)
	if _, err := solutionService.SeedIfEmpty(adminID); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed solutions")
	}

	ratingService := services.NewRatingService(repos)

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	taskQueue := services.NewTaskQueue(&cfg.Redis)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(ratingService.ProcessReconcileTask)
	}

	// Start async worker if Redis is enabled
	worker := services.NewWorker(&cfg.Redis)
	if worker != nil {
		worker.SetProcessor(ratingService.ProcessReconcileTask)
		if err := worker.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start worker")
		}
	}

	var scheduler *services.ReconcileScheduler
	if cfg.Reconcile.Enabled {
		scheduler = services.NewReconcileScheduler(repos, taskQueue, &cfg.Reconcile)
		if err := scheduler.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start reconcile scheduler")
			scheduler = nil
		}
	}

	inference := services.NewInferenceClient(&cfg.ML)
	predictionService := services.NewPredictionService(repos, inference, &cfg.Upload)

	return &appServices{
		cfg:       cfg,
		repos:     repos,
		taskQueue: taskQueue,
		worker:    worker,
		scheduler: scheduler,

		authHandler:       handlers.NewAuthHandler(authService),
		predictionHandler: handlers.NewPredictionHandler(predictionService, cfg.Upload.MaxBytes()),
		solutionHandler:   handlers.NewSolutionHandler(solutionService, ratingService),
		userHandler:       handlers.NewUserHandler(services.NewUserService(repos)),
		healthHandler:     handlers.NewHealthHandler(repos, inference, taskQueue, cfg.Server.Environment),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		logger.Info().Msg("Reconcile scheduler stopped")
	}
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
	if err := s.repos.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close storage")
	}
}
