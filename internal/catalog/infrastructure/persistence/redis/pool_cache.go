// Package redis 资金池目录的 Redis 读穿透缓存
package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/defiwizard/internal/catalog/domain"
	"github.com/wyfcoding/defiwizard/pkg/metrics"
)

const (
	poolKeyPrefix = "catalog:pool:"
	poolsKey      = "catalog:pools"
)

// JSONCache 缓存后端，由 pkg/cache.RedisCache 实现
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error
}

type cachedPoolRepository struct {
	next    domain.PoolRepository
	cache   JSONCache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCachedPoolRepository 包装底层仓储，缓存故障时降级直读
func NewCachedPoolRepository(next domain.PoolRepository, cache JSONCache, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) domain.PoolRepository {
	return &cachedPoolRepository{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		metrics: m,
		logger:  logger.With("module", "catalog_cache"),
	}
}

func (r *cachedPoolRepository) Get(ctx context.Context, assetID string) (*domain.Pool, error) {
	key := poolKeyPrefix + assetID
	var cached domain.Pool
	if r.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	p, err := r.next.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, p)
	return p, nil
}

func (r *cachedPoolRepository) List(ctx context.Context) ([]*domain.Pool, error) {
	var cached []*domain.Pool
	if r.lookup(ctx, poolsKey, &cached) {
		return cached, nil
	}

	pools, err := r.next.List(ctx)
	if err != nil {
		return nil, err
	}
	r.store(ctx, poolsKey, pools)
	return pools, nil
}

func (r *cachedPoolRepository) lookup(ctx context.Context, key string, dest any) bool {
	found, err := r.cache.GetJSON(ctx, key, dest)
	if err != nil {
		r.logger.WarnContext(ctx, "catalog cache read failed", "key", key, "error", err)
		return false
	}
	r.metrics.RecordCacheLookup(found)
	return found
}

func (r *cachedPoolRepository) store(ctx context.Context, key string, value any) {
	if err := r.cache.SetJSON(ctx, key, value, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "catalog cache write failed", "key", key, "error", err)
	}
}
