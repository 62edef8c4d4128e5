package store

import (
	"context"
	"path/filepath"
	"testing"

	"grid_trader/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *core.Snapshot {
	return &core.Snapshot{
		ContractID:  "ETH-USDT",
		CenterPrice: decimal.NewFromInt(2000),
		Levels: []core.SnapshotLevel{
			{Price: decimal.NewFromInt(1980), Side: core.SideBuy, Quantity: decimal.RequireFromString("0.0252"), OrderID: "ord-1", LevelIndex: -1},
			{Price: decimal.NewFromInt(2020), Side: core.SideSell, Quantity: decimal.RequireFromString("0.0247"), OrderID: "ord-2", LevelIndex: 1},
		},
		TradesCount: 7,
		MovesCount:  2,
		TotalProfit: decimal.RequireFromString("3.5"),
		SavedAtNano: 12345,
	}
}

func TestSQLiteStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SaveSnapshot(ctx, sampleSnapshot()))

	loaded, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "ETH-USDT", loaded.ContractID)
	assert.True(t, loaded.CenterPrice.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, int64(7), loaded.TradesCount)
	assert.Equal(t, int64(2), loaded.MovesCount)
	assert.True(t, loaded.TotalProfit.Equal(decimal.RequireFromString("3.5")))
	require.Len(t, loaded.Levels, 2)
	assert.Equal(t, -1, loaded.Levels[0].LevelIndex)
	assert.Equal(t, core.SideSell, loaded.Levels[1].Side)
}

func TestSQLiteStoreOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	first := sampleSnapshot()
	require.NoError(t, s.SaveSnapshot(ctx, first))

	second := sampleSnapshot()
	second.TradesCount = 99
	require.NoError(t, s.SaveSnapshot(ctx, second))

	loaded, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(99), loaded.TradesCount)
}

func TestSQLiteStoreEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStoreSaveLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	loaded, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, s.SaveSnapshot(ctx, sampleSnapshot()))
	loaded, err = s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(7), loaded.TradesCount)

	// Mutating the loaded copy must not leak back into the store.
	loaded.TradesCount = 0
	again, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), again.TradesCount)
}
