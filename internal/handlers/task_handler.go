package handlers

import (
	"net/http"

	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
)

// TaskHandler 任务查询接口
type TaskHandler struct {
	service *services.TaskService
}

func NewTaskHandler(service *services.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// ListTasks 支持 deal_id 与 source 过滤
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var req services.TaskListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query", Message: err.Error()})
		return
	}
	tasks, err := h.service.ListTasks(c.Request.Context(), c.Param("workspace_id"), &req)
	if err != nil {
		respondError(c, "Failed to list tasks", err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// RegisterTaskRoutes 注册路由
func RegisterTaskRoutes(r *gin.RouterGroup, handler *TaskHandler) {
	r.GET("/tasks", handler.ListTasks)
}
