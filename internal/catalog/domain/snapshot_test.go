package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	riskdomain "github.com/wyfcoding/defiwizard/internal/risk/domain"
)

type stubPools struct {
	pools []*Pool
	err   error
}

func (s stubPools) Get(ctx context.Context, assetID string) (*Pool, error) { return nil, s.err }
func (s stubPools) List(ctx context.Context) ([]*Pool, error)              { return s.pools, s.err }

type stubHoldings []*Holding

func (s stubHoldings) ListByAccount(ctx context.Context, accountID string) ([]*Holding, error) {
	return s, nil
}

func TestSnapshotIsolatedFromSource(t *testing.T) {
	eth := &Pool{AssetID: "ETH", UnitValue: decimal.NewFromInt(1700), LoanToValueMaxPct: decimal.NewFromInt(75), LiquidationThresholdPct: decimal.NewFromInt(80)}
	snap, err := LoadSnapshot(context.Background(), stubPools{pools: []*Pool{eth}}, stubHoldings{
		{AccountID: "a", AssetID: "ETH", Quantity: decimal.NewFromInt(2)},
		{AccountID: "a", AssetID: "ETH", Quantity: decimal.NewFromInt(3)},
	}, "a")
	require.NoError(t, err)

	eth.UnitValue = decimal.NewFromInt(1)

	got, err := snap.Pool("ETH")
	require.NoError(t, err)
	assert.True(t, got.UnitValue.Equal(decimal.NewFromInt(1700)))
	assert.True(t, snap.Balance("ETH").Equal(decimal.NewFromInt(5)))
	assert.True(t, snap.Balance("USDC").IsZero())
	assert.Len(t, snap.Pools(), 1)

	_, err = snap.Pool("USDC")
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestLoadSnapshotPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	_, err := LoadSnapshot(context.Background(), stubPools{err: boom}, nil, "")
	assert.ErrorIs(t, err, boom)
}

func TestPoolValidate(t *testing.T) {
	p := Pool{AssetID: "ETH", LoanToValueMaxPct: decimal.NewFromInt(80), LiquidationThresholdPct: decimal.NewFromInt(75)}
	err := p.Validate()
	assert.ErrorIs(t, err, ErrInvalidPool)
	assert.ErrorIs(t, err, riskdomain.ErrInvalidRiskParameters)

	assert.ErrorIs(t, Pool{}.Validate(), ErrInvalidPool)
}
