package handlers

import (
	"errors"
	"net/http"

	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// SuccessResponse 成功响应结构
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrRuleNotFound), errors.Is(err, services.ErrDealNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTrigger), errors.Is(err, services.ErrInvalidAction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, summary string, err error) {
	status := statusFor(err)
	c.JSON(status, ErrorResponse{Error: summary, Message: err.Error(), Code: status})
}
