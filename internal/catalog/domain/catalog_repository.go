package domain

import "context"

// PoolRepository 资金池只读仓储
type PoolRepository interface {
	Get(ctx context.Context, assetID string) (*Pool, error)
	List(ctx context.Context) ([]*Pool, error)
}

// HoldingRepository 钱包余额只读仓储
type HoldingRepository interface {
	ListByAccount(ctx context.Context, accountID string) ([]*Holding, error)
}
