package domain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot 会话开始时的目录只读快照，会话期间风险参数不变
type Snapshot struct {
	AccountID string
	TakenAt   time.Time
	pools     map[string]Pool
	holdings  map[string]decimal.Decimal
}

// NewSnapshot 复制传入的记录，之后对源数据的修改不会影响快照
func NewSnapshot(accountID string, pools []*Pool, holdings []*Holding) *Snapshot {
	s := &Snapshot{
		AccountID: accountID,
		TakenAt:   time.Now(),
		pools:     make(map[string]Pool, len(pools)),
		holdings:  make(map[string]decimal.Decimal, len(holdings)),
	}
	for _, p := range pools {
		if p != nil {
			s.pools[p.AssetID] = *p
		}
	}
	for _, h := range holdings {
		if h != nil {
			s.holdings[h.AssetID] = s.holdings[h.AssetID].Add(h.Quantity)
		}
	}
	return s
}

// LoadSnapshot 从仓储读取资金池与账户余额并生成快照
func LoadSnapshot(ctx context.Context, pools PoolRepository, holdings HoldingRepository, accountID string) (*Snapshot, error) {
	ps, err := pools.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	var hs []*Holding
	if accountID != "" && holdings != nil {
		hs, err = holdings.ListByAccount(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("list holdings: %w", err)
		}
	}
	return NewSnapshot(accountID, ps, hs), nil
}

// Pool 按资产查找资金池
func (s *Snapshot) Pool(assetID string) (Pool, error) {
	p, ok := s.pools[assetID]
	if !ok {
		return Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, assetID)
	}
	return p, nil
}

// Pools 按资产 ID 排序的资金池列表
func (s *Snapshot) Pools() []Pool {
	out := make([]Pool, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// Balance 钱包中某资产余额，无记录时为 0
func (s *Snapshot) Balance(assetID string) decimal.Decimal {
	return s.holdings[assetID]
}
