package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryIndexesAssetsAndSymbols(t *testing.T) {
	reg := DefaultRegistry()

	btc, ok := reg.Asset(2)
	require.True(t, ok)
	require.Equal(t, "BTC", btc.Symbol)

	sym, ok := reg.Symbol(1)
	require.True(t, ok)
	require.Equal(t, "BTC-USDT", sym.Name)
	require.Equal(t, uint32(2), sym.BaseAssetID)
	require.Equal(t, uint32(1), sym.QuoteAssetID)

	_, ok = reg.Symbol(999)
	require.False(t, ok)

	require.Equal(t, uint64(100_000_000), sym.QtyUnit())
}

func TestLoadWithNoPathFallsBackToDefaults(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 4096, reg.Queue.OrderQ)
	require.False(t, reg.Matching.AllowMarketBuy)

	sym, ok := reg.Symbol(1)
	require.True(t, ok)
	require.Equal(t, "BTC-USDT", sym.Name)
}
