package mysql

import (
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/defiwizard/internal/catalog/domain"
	"gorm.io/gorm"
)

// PoolModel 资金池表映射
type PoolModel struct {
	gorm.Model
	AssetID                 string          `gorm:"column:asset_id;type:varchar(32);uniqueIndex;not null"`
	Symbol                  string          `gorm:"column:symbol;type:varchar(20);not null"`
	Name                    string          `gorm:"column:name;type:varchar(100)"`
	UnitValue               decimal.Decimal `gorm:"column:unit_value;type:decimal(36,18);not null"`
	RatePct                 decimal.Decimal `gorm:"column:rate_pct;type:decimal(10,4);not null"`
	AvailableLiquidity      decimal.Decimal `gorm:"column:available_liquidity;type:decimal(36,18);not null"`
	UtilizationPct          decimal.Decimal `gorm:"column:utilization_pct;type:decimal(10,4);not null"`
	MinOperationAmount      decimal.Decimal `gorm:"column:min_operation_amount;type:decimal(36,18);not null"`
	LoanToValueMaxPct       decimal.Decimal `gorm:"column:ltv_max_pct;type:decimal(10,4);not null"`
	LiquidationThresholdPct decimal.Decimal `gorm:"column:liquidation_threshold_pct;type:decimal(10,4);not null"`
	CollateralEnabled       bool            `gorm:"column:collateral_enabled;not null;default:false"`
}

func (PoolModel) TableName() string { return "lending_pools" }

// HoldingModel 钱包余额表映射
type HoldingModel struct {
	gorm.Model
	AccountID string          `gorm:"column:account_id;type:varchar(64);index:idx_account_asset,unique;not null"`
	AssetID   string          `gorm:"column:asset_id;type:varchar(32);index:idx_account_asset,unique;not null"`
	Quantity  decimal.Decimal `gorm:"column:quantity;type:decimal(36,18);not null"`
}

func (HoldingModel) TableName() string { return "wallet_holdings" }

func toPool(m *PoolModel) *domain.Pool {
	return &domain.Pool{
		AssetID:                 m.AssetID,
		Symbol:                  m.Symbol,
		Name:                    m.Name,
		UnitValue:               m.UnitValue,
		RatePct:                 m.RatePct,
		AvailableLiquidity:      m.AvailableLiquidity,
		UtilizationPct:          m.UtilizationPct,
		MinOperationAmount:      m.MinOperationAmount,
		LoanToValueMaxPct:       m.LoanToValueMaxPct,
		LiquidationThresholdPct: m.LiquidationThresholdPct,
		CollateralEnabled:       m.CollateralEnabled,
	}
}

func toPoolModel(p *domain.Pool) *PoolModel {
	return &PoolModel{
		AssetID:                 p.AssetID,
		Symbol:                  p.Symbol,
		Name:                    p.Name,
		UnitValue:               p.UnitValue,
		RatePct:                 p.RatePct,
		AvailableLiquidity:      p.AvailableLiquidity,
		UtilizationPct:          p.UtilizationPct,
		MinOperationAmount:      p.MinOperationAmount,
		LoanToValueMaxPct:       p.LoanToValueMaxPct,
		LiquidationThresholdPct: p.LiquidationThresholdPct,
		CollateralEnabled:       p.CollateralEnabled,
	}
}

func toHolding(m *HoldingModel) *domain.Holding {
	return &domain.Holding{AccountID: m.AccountID, AssetID: m.AssetID, Quantity: m.Quantity}
}
