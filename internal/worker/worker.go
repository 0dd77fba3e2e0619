package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sashimi3433/Attendance-Check/pkg/queue"
)

// TokenCollector deletes stale attendance tokens.
type TokenCollector interface {
	GarbageCollect(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error)
}

// SessionCleaner clears session pointers whose session record expired.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// JobQueue is the part of the Redis queue the processor consumes from.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// MaintenanceProcessor runs token garbage collection and session cleanup jobs.
type MaintenanceProcessor struct {
	tokens     TokenCollector
	sessions   SessionCleaner
	gcAge      time.Duration
	jobTimeout time.Duration
	logger     *zap.Logger
}

// NewMaintenanceProcessor creates a maintenance processor. gcAge is the default token age when a
// job does not carry one; each job is bounded by jobTimeout.
func NewMaintenanceProcessor(tokens TokenCollector, sessions SessionCleaner, gcAge, jobTimeout time.Duration, logger *zap.Logger) *MaintenanceProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceProcessor{tokens: tokens, sessions: sessions, gcAge: gcAge, jobTimeout: jobTimeout, logger: logger}
}

// Process executes one maintenance job.
func (p *MaintenanceProcessor) Process(ctx context.Context, job *queue.Job) error {
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}
	switch job.Type {
	case queue.JobTypeTokenGC:
		payload := queue.TokenGCPayload{OlderThanSeconds: int64(p.gcAge / time.Second)}
		if len(job.Payload) > 0 {
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				return fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		n, err := p.tokens.GarbageCollect(ctx, time.Duration(payload.OlderThanSeconds)*time.Second, payload.DryRun)
		if err != nil {
			return err
		}
		p.logger.Debug("token gc job done", zap.String("job_id", job.ID), zap.Int64("count", n))
		return nil
	case queue.JobTypeSessionCleanup:
		n, err := p.sessions.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		p.logger.Debug("session cleanup job done", zap.String("job_id", job.ID), zap.Int("cleared", n))
		return nil
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// Run starts the consumer loop: dequeue, process, retry on error.
func (p *MaintenanceProcessor) Run(ctx context.Context, q JobQueue) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("maintenance worker stopping")
			return
		default:
		}

		job, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := q.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			sleep(ctx, queue.RetryBackoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
