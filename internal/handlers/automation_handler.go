package handlers

import (
	"net/http"

	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AutomationHandler 管理工作区自动化规则，并提供手动刷新与扫描入口
type AutomationHandler struct {
	rules    *services.AutomationRuleService
	registry *services.AutomationRegistry
	logger   *logrus.Logger
}

func NewAutomationHandler(rules *services.AutomationRuleService, registry *services.AutomationRegistry, logger *logrus.Logger) *AutomationHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AutomationHandler{rules: rules, registry: registry, logger: logger}
}

// ListRules 获取规则列表
func (h *AutomationHandler) ListRules(c *gin.Context) {
	rules, err := h.rules.ListRules(c.Request.Context(), c.Param("workspace_id"))
	if err != nil {
		respondError(c, "Failed to list automation rules", err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GetRule 获取单条规则
func (h *AutomationHandler) GetRule(c *gin.Context) {
	rule, err := h.rules.GetRule(c.Request.Context(), c.Param("workspace_id"), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get automation rule", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule 创建规则
func (h *AutomationHandler) CreateRule(c *gin.Context) {
	var req services.AutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	ws := c.Param("workspace_id")
	rule, err := h.rules.CreateRule(c.Request.Context(), ws, &req)
	if err != nil {
		respondError(c, "Failed to create automation rule", err)
		return
	}
	h.refreshLoaded(c, ws)
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule 更新规则
func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	var req services.AutomationRuleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	ws := c.Param("workspace_id")
	rule, err := h.rules.UpdateRule(c.Request.Context(), ws, c.Param("id"), &req)
	if err != nil {
		respondError(c, "Failed to update automation rule", err)
		return
	}
	h.refreshLoaded(c, ws)
	c.JSON(http.StatusOK, rule)
}

// DeleteRule 删除规则
func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	ws := c.Param("workspace_id")
	if err := h.rules.DeleteRule(c.Request.Context(), ws, c.Param("id")); err != nil {
		respondError(c, "Failed to delete automation rule", err)
		return
	}
	h.refreshLoaded(c, ws)
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// RefreshRules reloads the workspace engine's rule snapshot.
func (h *AutomationHandler) RefreshRules(c *gin.Context) {
	engine := h.registry.Engine(c.Request.Context(), c.Param("workspace_id"))
	if err := engine.RefreshRules(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Failed to refresh automation rules", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "refreshed", Data: gin.H{"rules": len(engine.Rules())}})
}

// RunSweep 立即执行一次停滞商机扫描；wait=true 时等待任务提交完成
func (h *AutomationHandler) RunSweep(c *gin.Context) {
	engine := h.registry.Engine(c.Request.Context(), c.Param("workspace_id"))
	engine.RunStaleDealsCheck(c.Request.Context())
	if c.Query("wait") == "true" {
		engine.Wait()
		c.JSON(http.StatusOK, SuccessResponse{Message: "sweep completed"})
		return
	}
	c.JSON(http.StatusAccepted, SuccessResponse{Message: "sweep started"})
}

// refreshLoaded keeps an already running engine in step with rule edits.
// Workspaces without an engine load rules on first use anyway.
func (h *AutomationHandler) refreshLoaded(c *gin.Context, workspaceID string) {
	if h.registry == nil {
		return
	}
	if engine, ok := h.registry.Lookup(workspaceID); ok {
		if err := engine.RefreshRules(c.Request.Context()); err != nil {
			h.logger.Warnf("refresh rules after edit failed for workspace %s: %v", workspaceID, err)
		}
	}
}

// RegisterAutomationRoutes 注册路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	auto := r.Group("/automations")
	{
		auto.GET("", handler.ListRules)
		auto.POST("", handler.CreateRule)
		auto.POST("/refresh", handler.RefreshRules)
		auto.POST("/sweep", handler.RunSweep)
		auto.GET("/:id", handler.GetRule)
		auto.PUT("/:id", handler.UpdateRule)
		auto.DELETE("/:id", handler.DeleteRule)
	}
}
