// Package mysql 基于 GORM 的资金池目录仓储（mysql/postgres/sqlite 通用）
package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/defiwizard/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate 创建或更新目录表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&PoolModel{}, &HoldingModel{})
}

type poolRepository struct{ db *gorm.DB }

func NewPoolRepository(db *gorm.DB) domain.PoolRepository {
	return &poolRepository{db: db}
}

func (r *poolRepository) Get(ctx context.Context, assetID string) (*domain.Pool, error) {
	var m PoolModel
	err := r.db.WithContext(ctx).Where("asset_id = ?", assetID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPoolNotFound, assetID)
	}
	if err != nil {
		return nil, err
	}
	return toPool(&m), nil
}

func (r *poolRepository) List(ctx context.Context) ([]*domain.Pool, error) {
	var models []PoolModel
	if err := r.db.WithContext(ctx).Order("asset_id").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Pool, 0, len(models))
	for i := range models {
		out = append(out, toPool(&models[i]))
	}
	return out, nil
}

type holdingRepository struct{ db *gorm.DB }

func NewHoldingRepository(db *gorm.DB) domain.HoldingRepository {
	return &holdingRepository{db: db}
}

func (r *holdingRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Holding, error) {
	var models []HoldingModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("asset_id").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Holding, 0, len(models))
	for i := range models {
		out = append(out, toHolding(&models[i]))
	}
	return out, nil
}

// Seed 以 asset_id / (account_id, asset_id) 为键写入种子数据，已存在的记录被覆盖
func Seed(ctx context.Context, db *gorm.DB, pools []*domain.Pool, holdings []*domain.Holding) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range pools {
			if err := p.Validate(); err != nil {
				return err
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "asset_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"symbol", "name", "unit_value", "rate_pct", "available_liquidity", "utilization_pct",
					"min_operation_amount", "ltv_max_pct", "liquidation_threshold_pct", "collateral_enabled", "updated_at",
				}),
			}).Create(toPoolModel(p)).Error
			if err != nil {
				return fmt.Errorf("seed pool %s: %w", p.AssetID, err)
			}
		}
		for _, h := range holdings {
			m := &HoldingModel{AccountID: h.AccountID, AssetID: h.AssetID, Quantity: h.Quantity}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_id"}, {Name: "asset_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
			}).Create(m).Error
			if err != nil {
				return fmt.Errorf("seed holding %s/%s: %w", h.AccountID, h.AssetID, err)
			}
		}
		return nil
	})
}
