package domain

import (
	"github.com/shopspring/decimal"
)

// Warning 不阻断流程的风险提示
type Warning string

const (
	WarningModerateRisk   Warning = "MODERATE_RISK"
	WarningLiquidityUsage Warning = "HIGH_LIQUIDITY_USAGE"
)

// Valuation 某资产的数量、单位价值与风险参数
type Valuation struct {
	Amount    AssetAmount
	UnitValue decimal.Decimal
	Params    RiskParameters
}

// DeriveInput 派生风险的输入
type DeriveInput struct {
	// Principal 流程操作的资产；IsDebt 为 true 时视为债务
	Principal *Valuation
	// Collateral 仅借款流程
	Collateral *Valuation
	IsDebt     bool
	Duration   DurationClass
	// Available 本流程可用额度（池子流动性或钱包余额）
	Available decimal.Decimal
}

// DerivedRisk 纯计算读模型，从不单独存储，每次读取重新计算
type DerivedRisk struct {
	CollateralValue decimal.Decimal `json:"collateral_value"`
	DebtValue       decimal.Decimal `json:"debt_value"`
	PrincipalValue  decimal.Decimal `json:"principal_value"`
	MaxBorrowValue  decimal.Decimal `json:"max_borrow_value"`
	CurrentLTVPct   Ratio           `json:"current_ltv_pct"`
	HealthFactor    Ratio           `json:"health_factor"`
	Tier            RiskTier        `json:"tier"`
	DailyCost       decimal.Decimal `json:"daily_cost"`
	MonthlyCost     decimal.Decimal `json:"monthly_cost"`
	YearlyCost      decimal.Decimal `json:"yearly_cost"`
	// TermCost 固定期限内的累计利息/收益，活期为 0
	TermCost decimal.Decimal `json:"term_cost"`
	Warnings []Warning       `json:"warnings,omitempty"`
}

// Derive 汇总计算派生风险
// LTV 为正无穷时仍返回完整读模型，同时返回 ErrUndercollateralized 供调用方标记
func Derive(in DeriveInput, th Thresholds) (DerivedRisk, error) {
	dr := DerivedRisk{
		CurrentLTVPct: Finite(decimal.Zero),
		HealthFactor:  Infinity,
	}

	var lt decimal.Decimal
	if in.Collateral != nil {
		cv, err := CollateralValue(in.Collateral.Amount, in.Collateral.UnitValue)
		if err != nil {
			return dr, err
		}
		dr.CollateralValue = cv
		dr.MaxBorrowValue = MaxBorrowValue(cv, in.Collateral.Params)
		lt = in.Collateral.Params.LiquidationThresholdPct
	}

	if in.Principal != nil {
		pv, err := CollateralValue(in.Principal.Amount, in.Principal.UnitValue)
		if err != nil {
			return dr, err
		}
		dr.PrincipalValue = pv
		costs := ProjectCosts(pv, in.Principal.Params.RatePct)
		dr.DailyCost, dr.MonthlyCost, dr.YearlyCost = costs.Daily, costs.Monthly, costs.Yearly
		if days := in.Duration.Days(); days > 0 {
			dr.TermCost = costs.Daily.Mul(decimal.NewFromInt(int64(days)))
		}
		if in.IsDebt {
			dr.DebtValue = pv
		}
		if in.Available.IsPositive() && in.Principal.Amount.Quantity.GreaterThan(in.Available.Mul(liquidityWarnShare)) {
			dr.Warnings = append(dr.Warnings, WarningLiquidityUsage)
		}
	}

	dr.CurrentLTVPct = CurrentLTVPct(dr.DebtValue, dr.CollateralValue)
	dr.HealthFactor = HealthFactor(dr.CollateralValue, lt, dr.DebtValue)
	dr.Tier = th.Tier(dr.HealthFactor)
	if !dr.HealthFactor.IsInf() && dr.HealthFactor.LessThan(th.Moderate) {
		dr.Warnings = append(dr.Warnings, WarningModerateRisk)
	}

	if dr.CurrentLTVPct.IsInf() {
		return dr, ErrUndercollateralized
	}
	return dr, nil
}

// Display 按展示精度舍入的副本
func (d DerivedRisk) Display() DerivedRisk {
	out := d
	out.CollateralValue = d.CollateralValue.Round(MoneyPlaces)
	out.DebtValue = d.DebtValue.Round(MoneyPlaces)
	out.PrincipalValue = d.PrincipalValue.Round(MoneyPlaces)
	out.MaxBorrowValue = d.MaxBorrowValue.Round(MoneyPlaces)
	out.CurrentLTVPct = d.CurrentLTVPct.Round(4)
	out.HealthFactor = d.HealthFactor.Round(4)
	out.DailyCost = d.DailyCost.Round(MoneyPlaces)
	out.MonthlyCost = d.MonthlyCost.Round(MoneyPlaces)
	out.YearlyCost = d.YearlyCost.Round(MoneyPlaces)
	out.TermCost = d.TermCost.Round(MoneyPlaces)
	return out
}

// HasWarning 是否包含指定提示
func (d DerivedRisk) HasWarning(w Warning) bool {
	for _, x := range d.Warnings {
		if x == w {
			return true
		}
	}
	return false
}
