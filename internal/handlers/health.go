package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/internal/services"
	"github.com/gin-gonic/gin"
)

const mlHealthTimeout = 3 * time.Second

// HealthHandler reports the state of the service and its dependencies.
type HealthHandler struct {
	repos       *repository.Repositories
	inference   *services.InferenceClient
	queue       services.TaskQueue
	environment string
	startedAt   time.Time
}

func NewHealthHandler(repos *repository.Repositories, inference *services.InferenceClient, queue services.TaskQueue, environment string) *HealthHandler {
	return &HealthHandler{
		repos:       repos,
		inference:   inference,
		queue:       queue,
		environment: environment,
		startedAt:   time.Now(),
	}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	status := "OK"
	code := http.StatusOK

	storageStatus := "ok"
	if err := h.repos.Ping(); err != nil {
		storageStatus = "error: " + err.Error()
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	counts, _ := h.repos.Stats()

	mlStatus := "ok"
	ctx, cancel := context.WithTimeout(c.Request.Context(), mlHealthTimeout)
	defer cancel()
	if err := h.inference.Health(ctx); err != nil {
		mlStatus = "unavailable"
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	c.JSON(code, gin.H{
		"status":      status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(h.startedAt).Seconds(),
		"environment": h.environment,
		"components": gin.H{
			"storage":    storageStatus,
			"backend":    h.repos.Backend,
			"records":    counts,
			"ml_service": mlStatus,
			"queue_mode": queueMode,
		},
	})
}
