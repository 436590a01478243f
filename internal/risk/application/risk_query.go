// Package application 风险预览查询：在进入向导前按任意抵押/债务组合计算派生风险
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	catalog "github.com/wyfcoding/defiwizard/internal/catalog/domain"
	"github.com/wyfcoding/defiwizard/internal/risk/domain"
	"github.com/wyfcoding/defiwizard/pkg/logger"
)

// PreviewRequest 风险预览请求，数量为十进制字符串
type PreviewRequest struct {
	AssetID            string `json:"asset_id" binding:"required"`
	Quantity           string `json:"quantity" binding:"required"`
	IsDebt             bool   `json:"is_debt"`
	CollateralAssetID  string `json:"collateral_asset_id"`
	CollateralQuantity string `json:"collateral_quantity"`
	Duration           string `json:"duration"`
}

// PreviewDTO 风险预览结果
type PreviewDTO struct {
	Risk                domain.DerivedRisk `json:"risk"`
	Undercollateralized bool               `json:"undercollateralized"`
	// AmountError 金额校验未通过时的原因，不影响其余字段
	AmountError string `json:"amount_error,omitempty"`
}

// RiskQueryService 无状态风险预览
type RiskQueryService struct {
	pools      catalog.PoolRepository
	thresholds domain.Thresholds
	logger     *slog.Logger
}

// NewRiskQueryService 创建风险预览服务
func NewRiskQueryService(pools catalog.PoolRepository, thresholds domain.Thresholds, l *slog.Logger) *RiskQueryService {
	return &RiskQueryService{pools: pools, thresholds: thresholds, logger: l.With("module", "risk_query")}
}

// Preview 计算派生风险；抵押不足仍返回读模型并置标记
func (s *RiskQueryService) Preview(ctx context.Context, req PreviewRequest) (*PreviewDTO, error) {
	qty, err := domain.ParseQuantity(req.Quantity)
	if err != nil {
		return nil, err
	}
	duration, err := domain.ParseDurationClass(req.Duration)
	if err != nil {
		return nil, err
	}
	pool, err := s.pools.Get(ctx, req.AssetID)
	if err != nil {
		return nil, err
	}

	in := domain.DeriveInput{
		Principal: &domain.Valuation{
			Amount:    domain.AssetAmount{AssetID: pool.AssetID, Quantity: qty},
			UnitValue: pool.UnitValue,
			Params:    pool.RiskParameters(),
		},
		IsDebt:   req.IsDebt,
		Duration: duration,
	}
	if req.IsDebt {
		in.Available = pool.AvailableLiquidity
	}
	if req.CollateralAssetID != "" {
		cqty, err := domain.ParseQuantity(req.CollateralQuantity)
		if err != nil {
			return nil, fmt.Errorf("collateral: %w", err)
		}
		cpool, err := s.pools.Get(ctx, req.CollateralAssetID)
		if err != nil {
			return nil, err
		}
		in.Collateral = &domain.Valuation{
			Amount:    domain.AssetAmount{AssetID: cpool.AssetID, Quantity: cqty},
			UnitValue: cpool.UnitValue,
			Params:    cpool.RiskParameters(),
		}
	}

	dr, err := domain.Derive(in, s.thresholds)
	if err != nil && !errors.Is(err, domain.ErrUndercollateralized) {
		return nil, err
	}
	out := &PreviewDTO{Risk: dr.Display(), Undercollateralized: err != nil}
	if req.IsDebt {
		if verr := domain.ValidateOperationAmount(qty, pool.RiskParameters(), pool.AvailableLiquidity); verr != nil {
			out.AmountError = verr.Error()
		}
	}
	logger.FromContext(ctx, s.logger).DebugContext(ctx, "risk preview computed",
		"asset_id", req.AssetID, "collateral_asset_id", req.CollateralAssetID, "tier", dr.Tier.String())
	return out, nil
}
