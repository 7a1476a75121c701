// Package main runs the accounts service HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xynes/accounts-service/config"
	"github.com/xynes/accounts-service/internal/actions"
	"github.com/xynes/accounts-service/internal/auth"
	"github.com/xynes/accounts-service/internal/authz"
	"github.com/xynes/accounts-service/internal/gateway"
	"github.com/xynes/accounts-service/internal/invites"
	"github.com/xynes/accounts-service/internal/middleware"
	"github.com/xynes/accounts-service/internal/users"
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
	if err := cfg.Internal.Validate(); err != nil {
		logger.Fatal("internal auth", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}

	authzClient, err := authz.New(authz.Config{
		BaseURL:      cfg.Authz.BaseURL,
		ServiceToken: cfg.Internal.ServiceToken,
		Timeout:      cfg.Authz.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal("authz client", zap.Error(err))
	}

	userRepo := users.NewRepository(pool)
	workspaceRepo := workspaces.NewRepository(pool)
	inviteRepo := invites.NewRepository(pool)

	// Without Redis the sagas only log failed compensations.
	var (
		cleanupQueue      workspaces.CleanupQueue
		compensationQueue invites.CompensationQueue
		jobQueue          *queue.Queue
	)
	if rdb != nil {
		defer rdb.Close()
		jobQueue = queue.NewQueue(rdb, logger)
		cleanupQueue = jobQueue
		compensationQueue = jobQueue
	}

	builder := actions.NewBuilder()
	gateway.RegisterPing(builder)
	users.NewHandler(userRepo, workspaceRepo, logger).Register(builder)
	workspaces.NewHandler(workspaceRepo, authzClient, cleanupQueue, logger).Register(builder)
	invites.NewHandler(inviteRepo, userRepo, workspaceRepo, authzClient, compensationQueue,
		invites.Options{ExpiresInDays: cfg.Invites.ExpiresInDays}, logger).Register(builder)
	dispatcher := builder.Build()
	logger.Info("actions registered", zap.Strings("keys", dispatcher.Keys()))

	verifier := auth.NewVerifier(auth.VerifierConfig{
		SigningKey:  cfg.Internal.SigningKey,
		LegacyToken: cfg.Internal.ServiceToken,
		AllowLegacy: cfg.Internal.AllowLegacy,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	gateway.NewHealth(pool, logger).Register(router)

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuth(verifier, logger))
	gateway.NewHandler(dispatcher, cfg.Server.MaxJSONBodyBytes, logger).Register(internal)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (compensation replay)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	if jobQueue != nil {
		processor := worker.NewCompensationProcessor(workspaceRepo, inviteRepo, workspaceRepo, jobQueue, logger)
		go func() {
			defer close(workerDone)
			processor.Run(workerCtx)
		}()
		logger.Info("compensation worker started")
	} else {
		close(workerDone)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	workerCancel()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("compensation worker did not stop in time")
	}
	logger.Info("server stopped")
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
