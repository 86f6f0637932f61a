// Package main runs the training registration HTTP server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ikatan-anggota/backend/config"
	"github.com/ikatan-anggota/backend/internal/auth"
	"github.com/ikatan-anggota/backend/internal/codegen"
	"github.com/ikatan-anggota/backend/internal/members"
	"github.com/ikatan-anggota/backend/internal/metrics"
	"github.com/ikatan-anggota/backend/internal/registrations"
	"github.com/ikatan-anggota/backend/internal/trainings"
	"github.com/ikatan-anggota/backend/internal/worker"
	"github.com/ikatan-anggota/backend/pkg/database"
	"github.com/ikatan-anggota/backend/pkg/queue"
	"github.com/ikatan-anggota/backend/pkg/redis"
	"github.com/ikatan-anggota/backend/pkg/response"
	"github.com/ikatan-anggota/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:       cfg.Database.MaxConns,
		AcquireTimeout: cfg.Database.AcquireTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	memberRepo := members.NewRepository(pool)
	registrationSvc := registrations.NewService(
		registrations.NewRepository(pool, cfg.Database.AcquireTimeout),
		codegen.New(cfg.Training.CodeMaxAttempts),
		m,
		logger,
		registrations.WithMaxRetries(cfg.Training.RegisterMaxRetries),
	)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	var (
		jobs  registrations.ExportJobs
		links registrations.ExportLinker
	)
	if s3Client != nil {
		jobs, links = jobQueue, s3Client
	}

	router := newRouter(handlers{
		auth:          auth.NewHandler(auth.NewRepository(pool), jwtService, logger),
		trainings:     trainings.NewHandler(trainings.NewRepository(pool), logger),
		members:       members.NewHandler(memberRepo, logger),
		registrations: registrations.NewHandler(registrationSvc, memberRepo, jobs, links, logger),
		health: func(c *gin.Context) {
			hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(hctx); err != nil {
				response.ServiceUnavailable(c, "database unavailable")
				return
			}
			if err := rdb.Healthy(hctx); err != nil {
				response.ServiceUnavailable(c, "redis unavailable")
				return
			}
			response.OK(c, gin.H{"status": "ok"})
		},
	}, jwtService, cfg.Server.CORSAllowedOrigins, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (roster export to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Worker.ExportEnabled && s3Client != nil {
		processor := worker.NewExportProcessor(registrationSvc, s3Client, jobQueue, m, logger)
		go processor.Run(workerCtx)
		logger.Info("export worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
