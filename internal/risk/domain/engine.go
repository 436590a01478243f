package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// divPlaces 中间除法精度
	divPlaces int32 = 18
	// MoneyPlaces 展示金额精度
	MoneyPlaces int32 = 8
)

var (
	hundred       = decimal.NewFromInt(100)
	monthsPerYear = decimal.NewFromInt(12)
	daysPerYear   = decimal.NewFromInt(365)
	// liquidityWarnShare 操作金额超过可用流动性的该比例时提示
	liquidityWarnShare = decimal.RequireFromString("0.9")
)

// CollateralValue 抵押价值 = 数量 * 单位价值
func CollateralValue(amount AssetAmount, unitValue decimal.Decimal) (decimal.Decimal, error) {
	if amount.Quantity.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: quantity %s is negative", ErrInvalidQuantity, amount.Quantity)
	}
	if unitValue.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: unit value %s is negative", ErrInvalidQuantity, unitValue)
	}
	return amount.Quantity.Mul(unitValue), nil
}

// MaxBorrowValue 最大可借价值 = 抵押价值 * LTV上限 / 100
func MaxBorrowValue(collateralValue decimal.Decimal, params RiskParameters) decimal.Decimal {
	return collateralValue.Mul(params.LoanToValueMaxPct).DivRound(hundred, divPlaces)
}

// CurrentLTVPct 当前 LTV 百分比；零抵押且有债务时为正无穷，由调用方标记为抵押不足
func CurrentLTVPct(debtValue, collateralValue decimal.Decimal) Ratio {
	if debtValue.IsZero() {
		return Finite(decimal.Zero)
	}
	if collateralValue.IsZero() {
		return Infinity
	}
	return Finite(debtValue.Mul(hundred).DivRound(collateralValue, divPlaces))
}

// HealthFactor 健康因子 = (抵押价值 * 清算阈值 / 100) / 债务价值，零债务为正无穷
// 这是唯一权威的清算风险信号
func HealthFactor(collateralValue, liquidationThresholdPct, debtValue decimal.Decimal) Ratio {
	if debtValue.IsZero() {
		return Infinity
	}
	return Finite(collateralValue.Mul(liquidationThresholdPct).DivRound(debtValue.Mul(hundred), divPlaces))
}

// Period 计息周期
type Period string

const (
	PeriodDaily   Period = "DAILY"
	PeriodMonthly Period = "MONTHLY"
	PeriodYearly  Period = "YEARLY"
)

// PeriodicCost 单利计息近似（非复利账本）：年 = 本金*利率/100，月 = 年/12，日 = 年/365
func PeriodicCost(principal, ratePct decimal.Decimal, period Period) (decimal.Decimal, error) {
	yearly := principal.Mul(ratePct).DivRound(hundred, divPlaces)
	switch period {
	case PeriodYearly:
		return yearly, nil
	case PeriodMonthly:
		return yearly.DivRound(monthsPerYear, divPlaces), nil
	case PeriodDaily:
		return yearly.DivRound(daysPerYear, divPlaces), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}
}

// Costs 三个周期的利息/收益预估
type Costs struct {
	Daily   decimal.Decimal `json:"daily"`
	Monthly decimal.Decimal `json:"monthly"`
	Yearly  decimal.Decimal `json:"yearly"`
}

// ProjectCosts 一次性计算日/月/年预估
func ProjectCosts(principal, ratePct decimal.Decimal) Costs {
	daily, _ := PeriodicCost(principal, ratePct, PeriodDaily)
	monthly, _ := PeriodicCost(principal, ratePct, PeriodMonthly)
	yearly, _ := PeriodicCost(principal, ratePct, PeriodYearly)
	return Costs{Daily: daily, Monthly: monthly, Yearly: yearly}
}

// ValidateOperationAmount 校验操作金额：先判非正，再判最小额，最后判可用流动性
func ValidateOperationAmount(amount decimal.Decimal, params RiskParameters, available decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrNonPositiveAmount, amount)
	}
	if amount.LessThan(params.MinOperationAmount) {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount, params.MinOperationAmount)
	}
	if amount.GreaterThan(available) {
		return fmt.Errorf("%w: %s > %s", ErrExceedsAvailableLiquidity, amount, available)
	}
	return nil
}
