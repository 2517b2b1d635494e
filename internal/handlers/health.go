package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db       *gorm.DB
	sink     *services.BreakerSink
	hub      *services.NotificationHub
	registry *services.AutomationRegistry
	version  string
}

// NewHealthHandler 创建健康检查处理器；sink/hub/registry 可为空
func NewHealthHandler(db *gorm.DB, sink *services.BreakerSink, hub *services.NotificationHub, registry *services.AutomationRegistry, version string) *HealthHandler {
	return &HealthHandler{db: db, sink: sink, hub: hub, registry: registry, version: version}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 服务信息
type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	Uptime    time.Duration `json:"uptime"`
	GoVersion string        `json:"go_version"`
}

var startTime = time.Now()

// Health reports database, task sink and automation status. A failing
// database makes the instance unhealthy; an open breaker only degrades it.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime),
			GoVersion: runtime.Version(),
		},
	}

	db := h.checkDatabase(ctx)
	if db.Status != "healthy" {
		resp.Status = "unhealthy"
	}
	resp.Services["database"] = db

	if h.sink != nil {
		breaker := h.sink.Breaker()
		info := ServiceInfo{Status: "healthy", Details: breaker.Stats()}
		if breaker.State() == services.StateOpen {
			info.Status = "degraded"
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
		resp.Services["task_sink"] = info
	}

	if h.registry != nil {
		resp.Services["automation"] = ServiceInfo{
			Status:  "healthy",
			Details: gin.H{"workspaces": h.registry.Workspaces()},
		}
	}
	if h.hub != nil {
		resp.Services["notifications"] = ServiceInfo{
			Status:  "healthy",
			Details: gin.H{"clients": h.hub.ClientCount()},
		}
	}

	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// Ready 就绪检查，仅检查数据库
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if info := h.checkDatabase(ctx); info.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": info.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceInfo {
	if h.db == nil {
		return ServiceInfo{Status: "unhealthy", Error: "database not configured"}
	}
	start := time.Now()
	sqlDB, err := h.db.DB()
	if err != nil {
		return ServiceInfo{Status: "unhealthy", Error: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return ServiceInfo{Status: "unhealthy", Error: err.Error()}
	}
	return ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
}
