package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RiskTier 健康因子风险等级，按严重程度有序
type RiskTier int

const (
	TierDanger RiskTier = iota
	TierRisky
	TierModerate
	TierSafe
)

func (t RiskTier) String() string {
	switch t {
	case TierDanger:
		return "DANGER"
	case TierRisky:
		return "RISKY"
	case TierModerate:
		return "MODERATE"
	case TierSafe:
		return "SAFE"
	default:
		return fmt.Sprintf("TIER(%d)", int(t))
	}
}

func (t RiskTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *RiskTier) UnmarshalText(text []byte) error {
	for _, c := range []RiskTier{TierDanger, TierRisky, TierModerate, TierSafe} {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown risk tier %q", text)
}

// Thresholds 风险分级阈值与前进硬下限
// 1.1/1.5/2.0 为界面经验值而非物理常量，因此全部可配置
type Thresholds struct {
	// Risky 及以上不再是 Danger
	Risky decimal.Decimal `json:"risky"`
	// Moderate 以下给出中等风险提示（不阻断）
	Moderate decimal.Decimal `json:"moderate"`
	// Safe 及以上为安全
	Safe decimal.Decimal `json:"safe"`
	// MinHealthFactor 健康因子低于此值时拒绝前进
	MinHealthFactor decimal.Decimal `json:"min_health_factor"`
}

// DefaultThresholds 默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		Risky:           decimal.RequireFromString("1.1"),
		Moderate:        decimal.RequireFromString("1.5"),
		Safe:            decimal.RequireFromString("2.0"),
		MinHealthFactor: decimal.RequireFromString("1.1"),
	}
}

// Validate 阈值必须单调递增且硬下限为正
func (t Thresholds) Validate() error {
	if !t.Risky.IsPositive() || t.Moderate.LessThan(t.Risky) || t.Safe.LessThan(t.Moderate) {
		return fmt.Errorf("%w: thresholds must satisfy 0 < risky <= moderate <= safe", ErrInvalidRiskParameters)
	}
	if !t.MinHealthFactor.IsPositive() {
		return fmt.Errorf("%w: min_health_factor must be positive", ErrInvalidRiskParameters)
	}
	return nil
}

// Tier 健康因子分级，每档下界为闭区间（1.5 归为 Moderate）
func (t Thresholds) Tier(healthFactor Ratio) RiskTier {
	switch {
	case healthFactor.GreaterThanOrEqual(t.Safe):
		return TierSafe
	case healthFactor.GreaterThanOrEqual(t.Moderate):
		return TierModerate
	case healthFactor.GreaterThanOrEqual(t.Risky):
		return TierRisky
	default:
		return TierDanger
	}
}
