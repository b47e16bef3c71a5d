// Package router assembles the gin engine: global middleware, public auth
// routes and the bearer-protected groups.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/taskflow-api/internal/handler"
	"github.com/noah-isme/taskflow-api/internal/middleware"
	"github.com/noah-isme/taskflow-api/internal/service"
	"github.com/noah-isme/taskflow-api/pkg/config"
	"github.com/noah-isme/taskflow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/taskflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/taskflow-api/pkg/middleware/requestid"
)

// Dependencies bundles what the router needs to mount every route.
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *service.MetricsService
	Authenticator middleware.Authenticator

	Auth   *handler.AuthHandler
	Tasks  *handler.TaskHandler
	Health *handler.MetricsHandler
}

// New builds the HTTP engine.
func New(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	logr := deps.Logger
	if logr == nil {
		logr = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	r.GET("/health", deps.Health.Health)
	r.GET("/ready", deps.Health.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", deps.Health.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	requireAuth := middleware.JWT(deps.Authenticator)

	auth := api.Group("/auth")
	auth.POST("/register", deps.Auth.Register)
	auth.POST("/login", deps.Auth.Login)
	auth.POST("/refresh", deps.Auth.Refresh)
	auth.GET("/me", requireAuth, deps.Auth.Me)

	tasks := api.Group("/tasks", requireAuth)
	tasks.POST("", deps.Tasks.Create)
	tasks.GET("", deps.Tasks.List)
	if cfg.Tasks.ExportEnabled {
		tasks.GET("/export", deps.Tasks.Export)
	}
	tasks.PUT("/:id", deps.Tasks.Update)
	tasks.DELETE("/:id", deps.Tasks.Delete)

	return r
}
