package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-portal-api/api/swagger"
	"github.com/noah-isme/course-portal-api/internal/app"
	"github.com/noah-isme/course-portal-api/internal/handler"
	"github.com/noah-isme/course-portal-api/pkg/config"
	"github.com/noah-isme/course-portal-api/pkg/jobs"
	"github.com/noah-isme/course-portal-api/pkg/logger"
)

// @title Course Portal API
// @version 1.0.0
// @description Milestone progression and bulk repository provisioning for course staff and learners
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer a.Close()

	queue := jobs.NewQueue("assignments", a.Assignments.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Provisioning.AsyncWorkers,
		MaxRetries: cfg.Provisioning.AsyncRetries,
		RetryDelay: 30 * time.Second,
		StateTTL:   cfg.Provisioning.JobStateTTL,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	checks := map[string]handler.ReadinessCheck{
		"database": a.DB.PingContext,
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	router := app.NewRouter(app.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Tokens:         a.Tokens,
		Observer:       a.Metrics,
		Logger:         logr,
	}, app.Handlers{
		Auth:        handler.NewAuthHandler(a.Identity, a.Provisioning, a.Tokens),
		Progression: handler.NewProgressionHandler(a.Provisioning),
		Grades:      handler.NewGradeHandler(a.Grades),
		Teams:       handler.NewTeamHandler(a.Teams),
		Assignments: handler.NewAssignmentHandler(a.Assignments, queue, cfg.APIPrefix+"/jobs"),
		Exports:     handler.NewExportHandler(a.Exports),
		Webhook:     handler.NewWebhookHandler(a.Provisioning, cfg.GitHub.WebhookSecret, logr),
		Metrics:     handler.NewMetricsHandler(a.Metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
