// Package memory 基于内存的资金池目录，由配置文件中的种子数据初始化
package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/wyfcoding/defiwizard/internal/catalog/domain"
)

// poolRepository 构造后只读，无需加锁
type poolRepository struct {
	pools map[string]*domain.Pool
}

// NewPoolRepository 校验并装载资金池，任一记录非法则返回错误
func NewPoolRepository(pools []*domain.Pool) (domain.PoolRepository, error) {
	r := &poolRepository{pools: make(map[string]*domain.Pool, len(pools))}
	for _, p := range pools {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		cp := *p
		r.pools[p.AssetID] = &cp
	}
	return r, nil
}

func (r *poolRepository) Get(ctx context.Context, assetID string) (*domain.Pool, error) {
	p, ok := r.pools[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPoolNotFound, assetID)
	}
	cp := *p
	return &cp, nil
}

func (r *poolRepository) List(ctx context.Context) ([]*domain.Pool, error) {
	out := make([]*domain.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

type holdingRepository struct {
	holdings map[string][]*domain.Holding
}

// NewHoldingRepository 按账户分组装载钱包余额
func NewHoldingRepository(holdings []*domain.Holding) domain.HoldingRepository {
	r := &holdingRepository{holdings: make(map[string][]*domain.Holding)}
	for _, h := range holdings {
		cp := *h
		r.holdings[h.AccountID] = append(r.holdings[h.AccountID], &cp)
	}
	return r
}

func (r *holdingRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Holding, error) {
	src := r.holdings[accountID]
	out := make([]*domain.Holding, 0, len(src))
	for _, h := range src {
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}
