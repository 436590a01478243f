package memory

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/defiwizard/internal/catalog/domain"
	"github.com/wyfcoding/defiwizard/pkg/config"
)

// PoolsFromSeeds 将配置中的十进制字符串转换为资金池记录，空字符串视为 0
func PoolsFromSeeds(seeds []config.PoolSeed) ([]*domain.Pool, error) {
	out := make([]*domain.Pool, 0, len(seeds))
	for i, s := range seeds {
		p := &domain.Pool{
			AssetID:           s.AssetID,
			Symbol:            s.Symbol,
			Name:              s.Name,
			CollateralEnabled: s.CollateralEnabled,
		}
		if p.Symbol == "" {
			p.Symbol = s.AssetID
		}
		fields := []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"unit_value", s.UnitValue, &p.UnitValue},
			{"rate_pct", s.RatePct, &p.RatePct},
			{"available_liquidity", s.AvailableLiquidity, &p.AvailableLiquidity},
			{"utilization_pct", s.UtilizationPct, &p.UtilizationPct},
			{"min_operation_amount", s.MinOperationAmount, &p.MinOperationAmount},
			{"loan_to_value_max_pct", s.LoanToValueMaxPct, &p.LoanToValueMaxPct},
			{"liquidation_threshold_pct", s.LiquidationThresholdPct, &p.LiquidationThresholdPct},
		}
		for _, f := range fields {
			v, err := parseDecimal(f.raw)
			if err != nil {
				return nil, fmt.Errorf("catalog.pools[%d].%s: %w", i, f.name, err)
			}
			*f.dst = v
		}
		out = append(out, p)
	}
	return out, nil
}

// HoldingsFromSeeds 将配置中的钱包余额转换为领域记录
func HoldingsFromSeeds(seeds []config.HoldingSeed) ([]*domain.Holding, error) {
	out := make([]*domain.Holding, 0, len(seeds))
	for i, s := range seeds {
		q, err := parseDecimal(s.Quantity)
		if err != nil {
			return nil, fmt.Errorf("catalog.holdings[%d].quantity: %w", i, err)
		}
		if q.IsNegative() {
			return nil, fmt.Errorf("catalog.holdings[%d].quantity: negative", i)
		}
		out = append(out, &domain.Holding{AccountID: s.AccountID, AssetID: s.AssetID, Quantity: q})
	}
	return out, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
