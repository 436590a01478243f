// Package application 资金池目录查询
package application

import (
	"context"
	"strings"

	"github.com/wyfcoding/defiwizard/internal/catalog/domain"
)

// CatalogQueryService 资金池目录查询服务
type CatalogQueryService struct {
	pools    domain.PoolRepository
	holdings domain.HoldingRepository
}

// NewCatalogQueryService 创建目录查询服务实例
func NewCatalogQueryService(pools domain.PoolRepository, holdings domain.HoldingRepository) *CatalogQueryService {
	return &CatalogQueryService{pools: pools, holdings: holdings}
}

// GetPool 按资产查询资金池
func (s *CatalogQueryService) GetPool(ctx context.Context, assetID string) (*domain.Pool, error) {
	return s.pools.Get(ctx, assetID)
}

// ListPools 列出资金池；collateralOnly 仅返回可作抵押的资产
func (s *CatalogQueryService) ListPools(ctx context.Context, collateralOnly bool) ([]*domain.Pool, error) {
	pools, err := s.pools.List(ctx)
	if err != nil || !collateralOnly {
		return pools, err
	}
	out := pools[:0]
	for _, p := range pools {
		if p.CollateralEnabled {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListHoldings 账户钱包余额
func (s *CatalogQueryService) ListHoldings(ctx context.Context, accountID string) ([]*domain.Holding, error) {
	if strings.TrimSpace(accountID) == "" {
		return []*domain.Holding{}, nil
	}
	return s.holdings.ListByAccount(ctx, accountID)
}
