package redis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/defiwizard/internal/catalog/domain"
)

type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func (m *mapCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return false, errors.New("connection refused")
	}
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *mapCache) SetJSON(ctx context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

type countingRepo struct {
	gets, lists int
}

func (c *countingRepo) Get(ctx context.Context, assetID string) (*domain.Pool, error) {
	c.gets++
	if assetID != "ETH" {
		return nil, domain.ErrPoolNotFound
	}
	return &domain.Pool{AssetID: "ETH", UnitValue: decimal.RequireFromString("1700.25")}, nil
}

func (c *countingRepo) List(ctx context.Context) ([]*domain.Pool, error) {
	c.lists++
	p, _ := c.Get(ctx, "ETH")
	return []*domain.Pool{p}, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCachedPoolRepositoryReadThrough(t *testing.T) {
	next := &countingRepo{}
	cache := &mapCache{data: map[string][]byte{}}
	repo := NewCachedPoolRepository(next, cache, time.Minute, nil, discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := repo.Get(ctx, "ETH")
		require.NoError(t, err)
		assert.True(t, p.UnitValue.Equal(decimal.RequireFromString("1700.25")))
	}
	assert.Equal(t, 1, next.gets)

	for i := 0; i < 2; i++ {
		pools, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, pools, 1)
	}
	assert.Equal(t, 1, next.lists)

	_, err := repo.Get(ctx, "DOGE")
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
}

func TestCachedPoolRepositoryDegradesOnCacheFailure(t *testing.T) {
	next := &countingRepo{}
	repo := NewCachedPoolRepository(next, &mapCache{data: map[string][]byte{}, failGet: true}, time.Minute, nil, discard())

	for i := 0; i < 2; i++ {
		_, err := repo.Get(context.Background(), "ETH")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, next.gets)
}
