package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/handler"
	"github.com/noah-isme/course-portal-api/internal/middleware"
	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-portal-api/pkg/middleware/requestid"
)

// Handlers is the HTTP surface mounted by NewRouter.
type Handlers struct {
	Auth        *handler.AuthHandler
	Progression *handler.ProgressionHandler
	Grades      *handler.GradeHandler
	Teams       *handler.TeamHandler
	Assignments *handler.AssignmentHandler
	Exports     *handler.ExportHandler
	Webhook     *handler.WebhookHandler
	Metrics     *handler.MetricsHandler
}

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Tokens         middleware.TokenValidator
	Observer       middleware.RequestObserver
	Logger         *zap.Logger
}

// NewRouter mounts every route. Everything under the API prefix except
// registration requires a bearer token.
func NewRouter(cfg RouterConfig, h Handlers) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Observer))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	r.POST("/githubWebhook", h.Webhook.Receive)
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/learners/register", h.Auth.Register)

	authed := api.Group("")
	authed.Use(middleware.JWT(cfg.Tokens))

	staffOrSelf := middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), middleware.Self)
	authed.GET("/learners/:id/status", staffOrSelf, h.Progression.Status)
	authed.GET("/learners/:id/grades/:deliverableId", staffOrSelf, h.Grades.Get)
	authed.POST("/provision", h.Progression.Provision)
	authed.POST("/teams", h.Teams.Form)

	staff := authed.Group("")
	staff.Use(middleware.RequireStaff())
	staff.POST("/repositories/:id/pull-request", h.Progression.RecordPullRequest)
	staff.POST("/grades", h.Grades.Record)
	staff.POST("/admin/teams", h.Teams.AdminForm)
	staff.GET("/roster", h.Exports.LadderRoster)
	staff.GET("/jobs/:jobId", h.Assignments.Job)

	assignments := staff.Group("/assignments/:id")
	assignments.POST("/initialize", h.Assignments.Initialize)
	assignments.POST("/publish", h.Assignments.Publish)
	assignments.POST("/close", h.Assignments.Close)
	assignments.GET("/status", h.Assignments.Status)
	assignments.GET("/roster", h.Exports.AssignmentRoster)
	assignments.DELETE("/repositories", h.Assignments.DeleteAll)
	assignments.DELETE("/repositories/:repoId", h.Assignments.DeleteOne)

	return r
}
