// Package app assembles the portal's dependency graph from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/hosting"
	"github.com/noah-isme/course-portal-api/internal/repository"
	"github.com/noah-isme/course-portal-api/internal/service"
	"github.com/noah-isme/course-portal-api/pkg/cache"
	"github.com/noah-isme/course-portal-api/pkg/config"
	"github.com/noah-isme/course-portal-api/pkg/database"
)

// Stores groups the Postgres repositories.
type Stores struct {
	People       *repository.PersonRepository
	Deliverables *repository.DeliverableRepository
	Teams        *repository.TeamRepository
	Repos        *repository.RepoRepository
	Grades       *repository.GradeRepository
}

// Facts exposes the stores through the service layer's ports.
func (s Stores) Facts() service.FactStore {
	return service.FactStore{
		People:       s.People,
		Deliverables: s.Deliverables,
		Teams:        s.Teams,
		Repos:        s.Repos,
		Grades:       s.Grades,
	}
}

// App holds every long-lived dependency of the portal.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client
	Stores Stores

	Metrics      *service.MetricsService
	Gateway      *hosting.Gateway
	Identity     *hosting.IdentityVerifier
	Resolver     *service.StageResolver
	Provisioning *service.ProvisioningService
	Assignments  *service.AssignmentService
	Grades       *service.GradeService
	Teams        *service.TeamService
	Exports      *service.ExportService
	Membership   *service.MembershipService
	Tokens       *service.TokenService
}

// New connects to Postgres, Redis and the hosting service and wires the
// services on top of them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		// The team number cache is an optimisation; run without it.
		logger.Warn("redis unavailable, team cache disabled", zap.Error(err))
		redisClient = nil
	}

	client, err := hosting.NewGitHubClient(ctx, cfg.GitHub.Token, cfg.GitHub.APIURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("github client: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Redis:   redisClient,
		Metrics: service.NewMetricsService(),
		Stores: Stores{
			People:       repository.NewPersonRepository(db),
			Deliverables: repository.NewDeliverableRepository(db),
			Teams:        repository.NewTeamRepository(db),
			Repos:        repository.NewRepoRepository(db),
			Grades:       repository.NewGradeRepository(db),
		},
	}

	opts := []hosting.GatewayOption{
		hosting.WithMetrics(a.Metrics),
		hosting.WithImporter(hosting.NewImporter(cfg.GitHub.Token, cfg.GitHub.CloneDir, logger)),
	}
	if redisClient != nil {
		opts = append(opts, hosting.WithTeamCache(repository.NewCacheRepository(redisClient, logger)))
	}
	a.Gateway = hosting.NewGateway(client, hosting.ConfigFrom(cfg.GitHub), logger, opts...)
	a.Identity = hosting.NewIdentityVerifier(cfg.GitHub.APIURL)

	validate := validator.New()
	facts := a.Stores.Facts()
	a.Resolver = service.NewStageResolver(facts, cfg.Provisioning.GradeToAdvance, logger)
	a.Provisioning = service.NewProvisioningService(facts, a.Gateway, a.Resolver, service.ProvisioningOptions{
		SeedRepoURL:  cfg.Provisioning.SeedRepoURL,
		SeedRepoPath: cfg.Provisioning.SeedRepoPath,
	}, a.Metrics, validate, logger)
	a.Assignments = service.NewAssignmentService(facts, a.Gateway, service.AssignmentOptions{
		Concurrency:    cfg.Provisioning.Concurrency,
		SubjectTimeout: cfg.Provisioning.SubjectTimeout,
	}, a.Metrics, logger)
	a.Grades = service.NewGradeService(facts, a.Resolver, validate, logger)
	a.Teams = service.NewTeamService(facts, validate, logger)
	a.Exports = service.NewExportService(facts, a.Resolver, a.Assignments, logger)
	a.Membership = service.NewMembershipService(a.Stores.People, a.Gateway, logger)
	a.Tokens = service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	return a, nil
}

// Close releases the database and cache connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
