package main

import (
	"github.com/agroc/backend/internal/metrics"
	"github.com/agroc/backend/internal/middleware"
	"github.com/agroc/backend/pkg/logger"
	"github.com/agroc/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	cfg := svc.cfg

	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window()))
	}
	r.Use(middleware.AuditLog())
	r.MaxMultipartMemory = cfg.Upload.MaxBytes()

	// Stored leaf images
	r.Static("/uploads", cfg.Upload.Dir)

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Auth is mounted at the root, not under /api
	auth := r.Group("/auth")
	{
		auth.POST("/register", svc.authHandler.Register)
		auth.POST("/login", svc.authHandler.Login)
		auth.GET("/profile", middleware.AuthRequired(), svc.authHandler.GetProfile)
		auth.PUT("/profile", middleware.AuthRequired(), svc.authHandler.UpdateProfile)
		auth.POST("/logout", middleware.AuthRequired(), svc.authHandler.Logout)
	}

	api := r.Group("/api")
	{
		// Predictions
		predictions := api.Group("/predictions", middleware.AuthRequired())
		{
			predictions.POST("", svc.predictionHandler.Create)
			predictions.GET("/stats/overview", middleware.AdminRequired(), svc.predictionHandler.Stats)
			predictions.GET("/:userId", svc.predictionHandler.History)
			predictions.PUT("/:id/feedback", svc.predictionHandler.Feedback)
		}

		// Direct forwarding to the inference service
		api.POST("/test-predict", svc.predictionHandler.TestPredict)

		// Solutions: reads are public, ratings and comments need a user.
		// The plant lookup shares the ":id" segment with the id routes.
		solutions := api.Group("/solutions")
		{
			solutions.GET("", svc.solutionHandler.List)
			solutions.GET("/stats/overview", svc.solutionHandler.Stats)
			solutions.GET("/:id/comments", svc.solutionHandler.ListComments)
			solutions.GET("/:id/:disease", svc.solutionHandler.GetByPlantDisease)

			rated := solutions.Group("", middleware.AuthRequired())
			rated.POST("/:id/rate", svc.solutionHandler.Rate)
			rated.POST("/:id/comments", svc.solutionHandler.AddComment)
			rated.POST("/:id/comments/:commentId/like", svc.solutionHandler.LikeComment)
			rated.POST("/:id/comments/:commentId/dislike", svc.solutionHandler.DislikeComment)
		}

		// Users
		users := api.Group("/users", middleware.AuthRequired())
		{
			users.GET("", middleware.AdminRequired(), svc.userHandler.List)
			users.GET("/stats/overview", middleware.AdminRequired(), svc.userHandler.Stats)
			users.GET("/:id", svc.userHandler.Get)
			users.PUT("/:id", svc.userHandler.Update)
			users.DELETE("/:id", svc.userHandler.Delete)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "Route not found")
	})
}
