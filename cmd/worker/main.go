// Package main runs the compensation worker on its own, for deployments that
// keep the HTTP server and the replay loop in separate processes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xynes/accounts-service/config"
	"github.com/xynes/accounts-service/internal/invites"
	"github.com/xynes/accounts-service/internal/worker"
	"github.com/xynes/accounts-service/internal/workspaces"
	"github.com/xynes/accounts-service/pkg/database"
	"github.com/xynes/accounts-service/pkg/queue"
	"github.com/xynes/accounts-service/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		newLogger("info").Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	if rdb == nil {
		logger.Fatal("REDIS_ADDR is required for the compensation worker")
	}
	defer rdb.Close()

	workspaceRepo := workspaces.NewRepository(pool)
	inviteRepo := invites.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb, logger)
	processor := worker.NewCompensationProcessor(workspaceRepo, inviteRepo, workspaceRepo, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}
