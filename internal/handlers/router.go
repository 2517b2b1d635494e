package handlers

import (
	"dealflow/internal/config"
	"dealflow/internal/middleware"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖；Sink 与 Hub 可为空
type RouterDeps struct {
	DB       *gorm.DB
	Rules    *services.AutomationRuleService
	Deals    *services.DealService
	Tasks    *services.TaskService
	Registry *services.AutomationRegistry
	Sink     *services.BreakerSink
	Hub      *services.NotificationHub
	Logger   *logrus.Logger
	Version  string
	// AccessLog 启用 gin 访问日志
	AccessLog bool
}

// NewRouter builds the HTTP surface. Workspace routes require a bearer
// token granting the :workspace_id in the path.
func NewRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if deps.AccessLog {
		r.Use(gin.Logger())
	}
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}
	r.Use(middleware.CORSMiddleware(cfg))
	r.Use(middleware.RateLimitMiddleware(cfg))

	health := NewHealthHandler(deps.DB, deps.Sink, deps.Hub, deps.Registry, deps.Version)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	if cfg.Monitoring.Enabled {
		path := cfg.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, NewMetricsHandler(deps.Hub, deps.Registry, deps.Sink).GetMetrics)
	}

	ws := r.Group("/api/workspaces/:workspace_id", middleware.AuthMiddleware(cfg))
	RegisterAutomationRoutes(ws, NewAutomationHandler(deps.Rules, deps.Registry, deps.Logger))
	RegisterDealRoutes(ws, NewDealHandler(deps.Deals))
	RegisterTaskRoutes(ws, NewTaskHandler(deps.Tasks))
	if deps.Hub != nil {
		ws.GET("/ws", deps.Hub.HandleWebSocket)
	}
	return r
}
