// Package http 风险预览 HTTP 接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	catalog "github.com/wyfcoding/defiwizard/internal/catalog/domain"
	"github.com/wyfcoding/defiwizard/internal/risk/application"
	"github.com/wyfcoding/defiwizard/internal/risk/domain"
	"github.com/wyfcoding/defiwizard/pkg/logger"
	"github.com/wyfcoding/defiwizard/pkg/response"
)

// RiskHandler 负责风险预览请求
type RiskHandler struct {
	query *application.RiskQueryService
}

// NewRiskHandler 创建 HTTP 处理器
func NewRiskHandler(query *application.RiskQueryService) *RiskHandler {
	return &RiskHandler{query: query}
}

// RegisterRoutes 注册路由
func (h *RiskHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/risk")
	{
		api.POST("/preview", h.Preview)
	}
}

// Preview 按输入计算派生风险
func (h *RiskHandler) Preview(c *gin.Context) {
	var req application.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	dto, err := h.query.Preview(c.Request.Context(), req)
	switch {
	case err == nil:
		response.Success(c, dto)
	case errors.Is(err, catalog.ErrPoolNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, "POOL_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		response.ErrorWithStatus(c, http.StatusBadRequest, "INVALID_QUANTITY", err.Error())
	case errors.Is(err, domain.ErrUnknownDurationClass):
		response.ErrorWithStatus(c, http.StatusBadRequest, "UNKNOWN_DURATION", err.Error())
	default:
		logger.Error(c.Request.Context(), "Failed to preview risk", "asset_id", req.AssetID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "INTERNAL", "failed to preview risk")
	}
}
