// Package http 向导会话的 HTTP 接口
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/defiwizard/internal/wizard/application"
	"github.com/wyfcoding/defiwizard/pkg/response"
)

// maxAttestationWait 长轮询等待证明结果的上限
const maxAttestationWait = 30 * time.Second

// WizardHandler 向导 HTTP 处理器
type WizardHandler struct {
	svc *application.WizardService
}

// NewWizardHandler 创建 HTTP 处理器
func NewWizardHandler(svc *application.WizardService) *WizardHandler {
	return &WizardHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *WizardHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/wizard/sessions")
	{
		api.POST("", h.StartSession)
		api.GET("/:id", h.GetSession)
		api.POST("/:id/asset", h.SelectAsset)
		api.POST("/:id/collateral", h.SelectCollateral)
		api.POST("/:id/amount", h.EnterAmount)
		api.POST("/:id/advance", h.Advance)
		api.POST("/:id/back", h.Back)
		api.POST("/:id/cancel", h.Cancel)
		api.POST("/:id/attestation", h.StartAttestation)
		api.GET("/:id/attestation", h.GetAttestation)
		api.POST("/:id/confirm", h.Confirm)
	}
}

type startSessionRequest struct {
	Flow      string `json:"flow" binding:"required"`
	AccountID string `json:"account_id"`
}

type selectAssetRequest struct {
	AssetID string `json:"asset_id" binding:"required"`
}

type selectCollateralRequest struct {
	AssetID  string `json:"asset_id" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
}

type enterAmountRequest struct {
	Quantity string `json:"quantity" binding:"required"`
	Duration string `json:"duration"`
}

// StartSession 开始流程
func (h *WizardHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	dto, err := h.svc.StartSession(c.Request.Context(), application.StartSessionCommand{Flow: req.Flow, AccountID: req.AccountID})
	if err != nil {
		writeError(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, dto)
}

// GetSession 查询会话
func (h *WizardHandler) GetSession(c *gin.Context) {
	dto, err := h.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dto)
}

// SelectAsset 选择资产
func (h *WizardHandler) SelectAsset(c *gin.Context) {
	var req selectAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	dto, err := h.svc.SelectAsset(c.Request.Context(), application.SelectAssetCommand{SessionID: c.Param("id"), AssetID: req.AssetID})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dto)
}

// SelectCollateral 选择抵押品
func (h *WizardHandler) SelectCollateral(c *gin.Context) {
	var req selectCollateralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	dto, err := h.svc.SelectCollateral(c.Request.Context(), application.SelectCollateralCommand{
		SessionID: c.Param("id"),
		AssetID:   req.AssetID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dto)
}

// EnterAmount 录入数量
func (h *WizardHandler) EnterAmount(c *gin.Context) {
	var req enterAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	dto, err := h.svc.EnterAmount(c.Request.Context(), application.EnterAmountCommand{
		SessionID: c.Param("id"),
		Quantity:  req.Quantity,
		Duration:  req.Duration,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dto)
}

// Advance 前进
func (h *WizardHandler) Advance(c *gin.Context) {
	dto, err := h.svc.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dto)
}

// Back 后退
func (h *WizardHandler) Back(c *gin.Context) {
	dto, err := h.svc.Back(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dto)
}

// Cancel 取消
func (h *WizardHandler) Cancel(c *gin.Context) {
	dto, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dto)
}

// StartAttestation 启动证明，202 表示任务已受理
func (h *WizardHandler) StartAttestation(c *gin.Context) {
	dto, err := h.svc.StartAttestation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusAccepted, dto)
}

// GetAttestation 查询证明状态；wait=5s 时长轮询至结束或超时
func (h *WizardHandler) GetAttestation(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	wait := c.Query("wait")
	if wait == "" {
		dto, err := h.svc.AttestationStatus(ctx, id)
		if err != nil {
			writeError(c, err)
			return
		}
		response.Success(c, dto)
		return
	}

	d, err := time.ParseDuration(wait)
	if err != nil || d <= 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "INVALID_ARGUMENT", "wait must be a positive duration")
		return
	}
	d = min(d, maxAttestationWait)
	waitCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	dto, err := h.svc.AwaitAttestation(waitCtx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dto)
}

// Confirm 确认
func (h *WizardHandler) Confirm(c *gin.Context) {
	dto, err := h.svc.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dto)
}
