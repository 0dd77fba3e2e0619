// Package main runs the maintenance worker: token garbage collection and expired-session cleanup.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sashimi3433/Attendance-Check/config"
	"github.com/sashimi3433/Attendance-Check/internal/sessions"
	"github.com/sashimi3433/Attendance-Check/internal/store/postgres"
	"github.com/sashimi3433/Attendance-Check/internal/tokens"
	"github.com/sashimi3433/Attendance-Check/internal/worker"
	"github.com/sashimi3433/Attendance-Check/pkg/database"
	"github.com/sashimi3433/Attendance-Check/pkg/queue"
	"github.com/sashimi3433/Attendance-Check/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if placement := worker.Plan(cfg); !placement.Queued {
		logger.Fatal("maintenance runs inside the server for this configuration; worker not needed",
			zap.String("reason", placement.Reason))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: 4}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	st := postgres.New(pool)
	tokenSvc := tokens.NewService(st, logger)
	guard := sessions.NewGuard(st, sessions.NewRedisBackend(rdb.Client), logger, sessions.WithTTL(cfg.Session.TTL))

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewMaintenanceProcessor(tokenSvc, guard, cfg.Maintenance.TokenGCAge, cfg.Maintenance.JobTimeout, logger)
	scheduler := worker.NewScheduler(cfg.Maintenance.Interval, cfg.Maintenance.TokenGCAge, worker.QueueSubmitter{Queue: jobQueue}, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Run(workerCtx, jobQueue)
	}()
	go func() {
		defer wg.Done()
		scheduler.Run(workerCtx)
	}()
	logger.Info("worker started", zap.Duration("interval", cfg.Maintenance.Interval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
