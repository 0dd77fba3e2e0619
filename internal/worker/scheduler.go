package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sashimi3433/Attendance-Check/pkg/queue"
)

// Submitter hands a job to whoever runs it: the Redis queue, or a processor directly.
type Submitter interface {
	Submit(ctx context.Context, job *queue.Job) error
}

// QueueSubmitter enqueues jobs for any worker instance to pick up.
type QueueSubmitter struct {
	Queue *queue.Queue
}

// Submit implements Submitter.
func (s QueueSubmitter) Submit(ctx context.Context, job *queue.Job) error {
	return s.Queue.Enqueue(ctx, job)
}

// Submit runs the job in the calling goroutine, for deployments without Redis.
func (p *MaintenanceProcessor) Submit(ctx context.Context, job *queue.Job) error {
	return p.Process(ctx, job)
}

// Scheduler submits token GC and session cleanup jobs on a fixed interval.
type Scheduler struct {
	interval time.Duration
	gcAge    time.Duration
	sub      Submitter
	logger   *zap.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(interval, gcAge time.Duration, sub Submitter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{interval: interval, gcAge: gcAge, sub: sub, logger: logger}
}

// Run submits one round immediately, then one per interval, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopping")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	gc, err := queue.NewJob(queue.JobTypeTokenGC, queue.TokenGCPayload{OlderThanSeconds: int64(s.gcAge / time.Second)})
	if err != nil {
		s.logger.Error("build token gc job", zap.Error(err))
		return
	}
	cleanup, err := queue.NewJob(queue.JobTypeSessionCleanup, nil)
	if err != nil {
		s.logger.Error("build session cleanup job", zap.Error(err))
		return
	}
	for _, job := range []*queue.Job{gc, cleanup} {
		if err := s.sub.Submit(ctx, job); err != nil && ctx.Err() == nil {
			s.logger.Warn("submit maintenance job failed", zap.String("type", string(job.Type)), zap.Error(err))
		}
	}
}
