// Package domain 资金池目录：外部只读数据源提供的资金池与钱包余额
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	riskdomain "github.com/wyfcoding/defiwizard/internal/risk/domain"
)

var (
	ErrPoolNotFound    = errors.New("pool not found")
	ErrHoldingNotFound = errors.New("holding not found")
	ErrInvalidPool     = errors.New("invalid pool record")
)

// Pool 资金池记录
type Pool struct {
	AssetID                 string          `json:"asset_id"`
	Symbol                  string          `json:"symbol"`
	Name                    string          `json:"name"`
	UnitValue               decimal.Decimal `json:"unit_value"`
	RatePct                 decimal.Decimal `json:"rate_pct"`
	AvailableLiquidity      decimal.Decimal `json:"available_liquidity"`
	UtilizationPct          decimal.Decimal `json:"utilization_pct"`
	MinOperationAmount      decimal.Decimal `json:"min_operation_amount"`
	LoanToValueMaxPct       decimal.Decimal `json:"loan_to_value_max_pct"`
	LiquidationThresholdPct decimal.Decimal `json:"liquidation_threshold_pct"`
	CollateralEnabled       bool            `json:"collateral_enabled"`
}

// RiskParameters 资金池对应的风险参数
func (p Pool) RiskParameters() riskdomain.RiskParameters {
	return riskdomain.RiskParameters{
		AssetID:                 p.AssetID,
		LoanToValueMaxPct:       p.LoanToValueMaxPct,
		LiquidationThresholdPct: p.LiquidationThresholdPct,
		MinOperationAmount:      p.MinOperationAmount,
		AvailableLiquidity:      p.AvailableLiquidity,
		RatePct:                 p.RatePct,
	}
}

// Validate 校验资金池记录，风险参数必须满足 清算阈值 >= 最大 LTV
func (p Pool) Validate() error {
	if strings.TrimSpace(p.AssetID) == "" {
		return fmt.Errorf("%w: empty asset id", ErrInvalidPool)
	}
	if p.UnitValue.IsNegative() {
		return fmt.Errorf("%w: %s unit value is negative", ErrInvalidPool, p.AssetID)
	}
	if err := p.RiskParameters().Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPool, p.AssetID, err)
	}
	return nil
}

// Holding 钱包余额
type Holding struct {
	AccountID string          `json:"account_id"`
	AssetID   string          `json:"asset_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}
