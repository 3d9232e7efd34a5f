package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agroc/backend/internal/config"
	"github.com/agroc/backend/internal/models"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTypeReconcile_Constant(t *testing.T) {
	if TaskTypeReconcile != "rating:reconcile" {
		t.Errorf("TaskTypeReconcile = %q, expected %q", TaskTypeReconcile, "rating:reconcile")
	}
}

func TestNewTaskQueue_DisabledRedis(t *testing.T) {
	queue := NewTaskQueue(&config.RedisConfig{Enabled: false})
	if queue.IsAsync() {
		t.Error("queue should be sync when redis is disabled")
	}
	if err := queue.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewWorker_DisabledRedis(t *testing.T) {
	if w := NewWorker(&config.RedisConfig{Enabled: false}); w != nil {
		t.Error("worker should be nil when redis is disabled")
	}
}

func TestReconcileTaskOptions(t *testing.T) {
	var unique time.Duration
	for _, opt := range reconcileTaskOptions() {
		switch opt.Type() {
		case asynq.TaskIDOpt:
			t.Errorf("reconcile tasks should not carry a fixed task id: %s", opt)
		case asynq.UniqueOpt:
			unique, _ = opt.Value().(time.Duration)
		}
	}
	assert.Equal(t, reconcileUniqueTTL, unique)
}

func TestSyncQueue_NoProcessor(t *testing.T) {
	queue := NewSyncQueue()
	if err := queue.Enqueue(&ReconcileTask{SolutionID: 1}); err != nil {
		t.Errorf("Enqueue() error = %v", err)
	}
	queue.Wait()
}

func TestSyncQueue_RunsProcessor(t *testing.T) {
	queue := NewSyncQueue()

	var mu sync.Mutex
	var seen []uint
	queue.SetProcessor(func(ctx context.Context, task *ReconcileTask) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, task.SolutionID)
		return nil
	})

	for i := uint(1); i <= 3; i++ {
		if err := queue.Enqueue(&ReconcileTask{SolutionID: i}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	queue.Wait()

	if len(seen) != 3 {
		t.Errorf("processed %d tasks, expected 3", len(seen))
	}
}

func TestReconcileScheduler_EnqueueAllRepairs(t *testing.T) {
	repos := newTestRepos()
	rating := NewRatingService(repos)
	u := addUser(t, repos, "Alice", "alice@example.com", models.RoleUser)
	first := addSolution(t, repos, "apple", "scab")
	second := addSolution(t, repos, "corn", "leaf_blight")

	_, err := rating.Rate(first.ID, u.ID, 4)
	require.NoError(t, err)

	drifted, err := repos.Solutions.FindByID(first.ID)
	require.NoError(t, err)
	drifted.AverageRating = 2
	require.NoError(t, repos.Solutions.Save(drifted))

	queue := NewSyncQueue()
	queue.SetProcessor(rating.ProcessReconcileTask)
	scheduler := NewReconcileScheduler(repos, queue, &config.ReconcileConfig{Enabled: true, Schedule: "@every 1h"})

	assert.Equal(t, 2, scheduler.EnqueueAll())
	queue.Wait()

	fixed, err := repos.Solutions.FindByID(first.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, fixed.AverageRating, 1e-9)
	assert.Equal(t, 1, fixed.TotalRatings)

	untouched, err := repos.Solutions.FindByID(second.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, untouched.TotalRatings)
}

func TestReconcileScheduler_StartStop(t *testing.T) {
	repos := newTestRepos()
	scheduler := NewReconcileScheduler(repos, NewSyncQueue(), &config.ReconcileConfig{Schedule: "@every 1h"})

	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Start())
	scheduler.Stop()
	scheduler.Stop()

	bad := NewReconcileScheduler(repos, NewSyncQueue(), &config.ReconcileConfig{Schedule: "not a schedule"})
	assert.Error(t, bad.Start())
}

func TestProcessReconcileTask_CanceledContext(t *testing.T) {
	rating := NewRatingService(newTestRepos())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rating.ProcessReconcileTask(ctx, &ReconcileTask{SolutionID: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
