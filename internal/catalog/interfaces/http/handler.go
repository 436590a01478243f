// Package http 资金池目录的 HTTP 接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/defiwizard/internal/catalog/application"
	"github.com/wyfcoding/defiwizard/internal/catalog/domain"
	"github.com/wyfcoding/defiwizard/pkg/logger"
	"github.com/wyfcoding/defiwizard/pkg/response"
)

// CatalogHandler 目录 HTTP 处理器
type CatalogHandler struct {
	query *application.CatalogQueryService
}

// NewCatalogHandler 创建 HTTP 处理器
func NewCatalogHandler(query *application.CatalogQueryService) *CatalogHandler {
	return &CatalogHandler{query: query}
}

// RegisterRoutes 注册路由
func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1")
	{
		api.GET("/pools", h.ListPools)
		api.GET("/pools/:asset_id", h.GetPool)
		api.GET("/accounts/:account_id/holdings", h.ListHoldings)
	}
}

// ListPools 列出资金池，?collateral=true 仅返回可抵押资产
func (h *CatalogHandler) ListPools(c *gin.Context) {
	pools, err := h.query.ListPools(c.Request.Context(), c.Query("collateral") == "true")
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list pools", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "INTERNAL", "failed to list pools")
		return
	}
	response.Success(c, pools)
}

// GetPool 查询单个资金池
func (h *CatalogHandler) GetPool(c *gin.Context) {
	assetID := c.Param("asset_id")
	pool, err := h.query.GetPool(c.Request.Context(), assetID)
	if errors.Is(err, domain.ErrPoolNotFound) {
		response.ErrorWithStatus(c, http.StatusNotFound, "POOL_NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to get pool", "asset_id", assetID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "INTERNAL", "failed to get pool")
		return
	}
	response.Success(c, pool)
}

// ListHoldings 查询账户余额
func (h *CatalogHandler) ListHoldings(c *gin.Context) {
	accountID := c.Param("account_id")
	holdings, err := h.query.ListHoldings(c.Request.Context(), accountID)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list holdings", "account_id", accountID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "INTERNAL", "failed to list holdings")
		return
	}
	response.Success(c, holdings)
}
