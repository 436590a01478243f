// Package domain 仓位风险引擎的领域模型：资产数量、风险参数、仓位与派生风险读模型
package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity           = errors.New("invalid quantity")
	ErrUndercollateralized       = errors.New("position undercollateralized")
	ErrBelowMinimum              = errors.New("amount below minimum operation amount")
	ErrExceedsAvailableLiquidity = errors.New("amount exceeds available liquidity")
	ErrNonPositiveAmount         = errors.New("amount must be positive")
	ErrInvalidRiskParameters     = errors.New("invalid risk parameters")
	ErrUnknownPeriod             = errors.New("unknown accrual period")
	ErrUnknownDurationClass      = errors.New("unknown duration class")
)

// AssetAmount 资产数量值对象，AssetID 对应外部价格表中的单位价值
type AssetAmount struct {
	AssetID  string          `json:"asset_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// NewAssetAmount 创建资产数量，数量不可为负
func NewAssetAmount(assetID string, quantity decimal.Decimal) (AssetAmount, error) {
	if quantity.IsNegative() {
		return AssetAmount{}, fmt.Errorf("%w: %s is negative", ErrInvalidQuantity, quantity)
	}
	return AssetAmount{AssetID: assetID, Quantity: quantity}, nil
}

// ParseQuantity 解析用户输入的数量字符串，拒绝 NaN/Inf/负数等非法输入
func ParseQuantity(s string) (decimal.Decimal, error) {
	q, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	if q.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s is negative", ErrInvalidQuantity, q)
	}
	return q, nil
}

// QuantityFromFloat 将浮点数量转换为 decimal，非有限值直接拒绝
func QuantityFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: non-finite value", ErrInvalidQuantity)
	}
	if f < 0 {
		return decimal.Zero, fmt.Errorf("%w: %v is negative", ErrInvalidQuantity, f)
	}
	return decimal.NewFromFloat(f), nil
}

// RiskParameters 资产/资金池风险参数，会话期间只读
type RiskParameters struct {
	AssetID                 string          `json:"asset_id"`
	LoanToValueMaxPct       decimal.Decimal `json:"loan_to_value_max_pct"`
	LiquidationThresholdPct decimal.Decimal `json:"liquidation_threshold_pct"`
	MinOperationAmount      decimal.Decimal `json:"min_operation_amount"`
	AvailableLiquidity      decimal.Decimal `json:"available_liquidity"`
	RatePct                 decimal.Decimal `json:"rate_pct"`
}

// Validate 校验百分比范围以及 清算阈值 >= 最大 LTV
func (p RiskParameters) Validate() error {
	if p.LoanToValueMaxPct.IsNegative() || p.LoanToValueMaxPct.GreaterThan(hundred) {
		return fmt.Errorf("%w: loan_to_value_max_pct %s out of range", ErrInvalidRiskParameters, p.LoanToValueMaxPct)
	}
	if p.LiquidationThresholdPct.IsNegative() || p.LiquidationThresholdPct.GreaterThan(hundred) {
		return fmt.Errorf("%w: liquidation_threshold_pct %s out of range", ErrInvalidRiskParameters, p.LiquidationThresholdPct)
	}
	if p.LiquidationThresholdPct.LessThan(p.LoanToValueMaxPct) {
		return fmt.Errorf("%w: liquidation threshold %s below max ltv %s", ErrInvalidRiskParameters, p.LiquidationThresholdPct, p.LoanToValueMaxPct)
	}
	if p.MinOperationAmount.IsNegative() || p.AvailableLiquidity.IsNegative() || p.RatePct.IsNegative() {
		return fmt.Errorf("%w: negative amount or rate", ErrInvalidRiskParameters)
	}
	return nil
}

// DurationClass 期限类型
type DurationClass string

const (
	DurationFlexible DurationClass = "FLEXIBLE"
	DurationFixed30  DurationClass = "FIXED_30"
	DurationFixed90  DurationClass = "FIXED_90"
)

// Days 固定期限天数，活期返回 0
func (d DurationClass) Days() int {
	switch d {
	case DurationFixed30:
		return 30
	case DurationFixed90:
		return 90
	default:
		return 0
	}
}

// ParseDurationClass 解析期限类型，空字符串视为活期
func ParseDurationClass(s string) (DurationClass, error) {
	switch d := DurationClass(strings.ToUpper(strings.TrimSpace(s))); d {
	case "":
		return DurationFlexible, nil
	case DurationFlexible, DurationFixed30, DurationFixed90:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDurationClass, s)
	}
}

// Position 单个向导会话的工作仓位
// Principal 为流程操作的资产（借款流程中即债务），Collateral 仅借款流程使用
type Position struct {
	Principal     *AssetAmount  `json:"principal,omitempty"`
	Collateral    *AssetAmount  `json:"collateral,omitempty"`
	DurationClass DurationClass `json:"duration_class"`
}

// Reset 清空仓位
func (p *Position) Reset() {
	p.Principal = nil
	p.Collateral = nil
	p.DurationClass = DurationFlexible
}

// Clone 深拷贝，供读模型使用
func (p Position) Clone() Position {
	out := Position{DurationClass: p.DurationClass}
	if p.Principal != nil {
		v := *p.Principal
		out.Principal = &v
	}
	if p.Collateral != nil {
		v := *p.Collateral
		out.Collateral = &v
	}
	return out
}

// IsEmpty 仓位是否尚未录入任何数据
func (p Position) IsEmpty() bool {
	return p.Principal == nil && p.Collateral == nil
}
