package services

import (
	"sync"

	"github.com/agroc/backend/internal/config"
	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// ReconcileScheduler periodically enqueues a reconcile task for every
// solution.
type ReconcileScheduler struct {
	solutions repository.SolutionRepository
	queue     TaskQueue
	schedule  string

	mu   sync.Mutex
	cron *cron.Cron
}

func NewReconcileScheduler(repos *repository.Repositories, queue TaskQueue, cfg *config.ReconcileConfig) *ReconcileScheduler {
	return &ReconcileScheduler{
		solutions: repos.Solutions,
		queue:     queue,
		schedule:  cfg.Schedule,
	}
}

// Start registers the job and starts the cron runner.
func (s *ReconcileScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.EnqueueAll() }); err != nil {
		return err
	}
	c.Start()
	s.cron = c

	logger.Infof("[Reconcile] Scheduler started, schedule: %s", s.schedule)
	return nil
}

// Stop halts the cron runner and waits for a running job.
func (s *ReconcileScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// EnqueueAll queues one task per solution and returns how many were queued.
func (s *ReconcileScheduler) EnqueueAll() int {
	solutions, err := s.solutions.Find(repository.SolutionQuery{}, repository.FindOptions{Limit: repository.Unlimited})
	if err != nil {
		logger.Errorf("[Reconcile] Failed to list solutions: %v", err)
		return 0
	}

	queued := 0
	for _, solution := range solutions {
		if err := s.queue.Enqueue(&ReconcileTask{SolutionID: solution.ID}); err != nil {
			logger.Errorf("[Reconcile] Failed to enqueue solution %d: %v", solution.ID, err)
			continue
		}
		queued++
	}
	logger.Debugf("[Reconcile] Queued %d solutions", queued)
	return queued
}
