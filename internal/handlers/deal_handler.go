package handlers

import (
	"net/http"

	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
)

// DealHandler 商机接口；创建与阶段变更会触发自动化规则
type DealHandler struct {
	service *services.DealService
}

func NewDealHandler(service *services.DealService) *DealHandler {
	return &DealHandler{service: service}
}

// DealMoveRequest 阶段变更请求
type DealMoveRequest struct {
	StageID string `json:"stage_id" binding:"required"`
}

func (h *DealHandler) ListDeals(c *gin.Context) {
	deals, err := h.service.ListDeals(c.Request.Context(), c.Param("workspace_id"))
	if err != nil {
		respondError(c, "Failed to list deals", err)
		return
	}
	c.JSON(http.StatusOK, deals)
}

func (h *DealHandler) GetDeal(c *gin.Context) {
	deal, err := h.service.GetDeal(c.Request.Context(), c.Param("workspace_id"), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get deal", err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *DealHandler) CreateDeal(c *gin.Context) {
	var req services.DealCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	deal, err := h.service.CreateDeal(c.Request.Context(), c.Param("workspace_id"), &req)
	if err != nil {
		respondError(c, "Failed to create deal", err)
		return
	}
	c.JSON(http.StatusCreated, deal)
}

func (h *DealHandler) UpdateDeal(c *gin.Context) {
	var req services.DealUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	deal, err := h.service.UpdateDeal(c.Request.Context(), c.Param("workspace_id"), c.Param("id"), &req)
	if err != nil {
		respondError(c, "Failed to update deal", err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// MoveDeal 变更商机阶段
func (h *DealHandler) MoveDeal(c *gin.Context) {
	var req DealMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	deal, err := h.service.MoveDealStage(c.Request.Context(), c.Param("workspace_id"), c.Param("id"), req.StageID)
	if err != nil {
		respondError(c, "Failed to move deal", err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// RegisterDealRoutes 注册路由
func RegisterDealRoutes(r *gin.RouterGroup, handler *DealHandler) {
	deals := r.Group("/deals")
	{
		deals.GET("", handler.ListDeals)
		deals.POST("", handler.CreateDeal)
		deals.GET("/:id", handler.GetDeal)
		deals.PUT("/:id", handler.UpdateDeal)
		deals.POST("/:id/move", handler.MoveDeal)
	}
}
