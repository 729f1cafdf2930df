package risk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rishav/exchange-core/internal/orders"
)

func TestCheckRejectsOversizedOrder(t *testing.T) {
	c := NewChecker(Config{MaxOrderSize: 100, MaxOrderNotional: 1_000_000})
	res := c.Check(&orders.Order{SymbolID: 1, Type: orders.OrderTypeLimit, Price: 10, Quantity: 200})
	require.False(t, res.Passed)
	require.Contains(t, res.Reason, "order size")
}

func TestCheckRejectsExcessiveNotional(t *testing.T) {
	c := NewChecker(Config{MaxOrderSize: 1_000_000, MaxOrderNotional: 500})
	res := c.Check(&orders.Order{SymbolID: 1, Type: orders.OrderTypeLimit, Price: 100, Quantity: 10})
	require.False(t, res.Passed)
	require.Contains(t, res.Reason, "notional")
}

func TestCheckEnforcesPriceBand(t *testing.T) {
	c := NewChecker(Config{MaxOrderSize: 1_000_000, MaxOrderNotional: 1_000_000_000, PriceBandPercent: 0.10})
	c.SetReferencePrice(1, 100)

	res := c.Check(&orders.Order{SymbolID: 1, Type: orders.OrderTypeLimit, Price: 150, Quantity: 1})
	require.False(t, res.Passed)
	require.Contains(t, res.ChecksRun, "price_band")
}

func TestCheckPassesWithinBounds(t *testing.T) {
	c := NewChecker(DefaultConfig())
	c.SetReferencePrice(1, 100)

	res := c.Check(&orders.Order{SymbolID: 1, Type: orders.OrderTypeLimit, Price: 101, Quantity: 5})
	require.True(t, res.Passed)
	require.Equal(t, []string{"order_size", "order_notional", "price_band"}, res.ChecksRun)
}

func TestSymbolMaxSizeOverridesGlobal(t *testing.T) {
	c := NewChecker(Config{MaxOrderSize: 1000, MaxOrderNotional: 1_000_000_000, SymbolMaxSize: map[uint32]int64{1: 5}})
	res := c.Check(&orders.Order{SymbolID: 1, Type: orders.OrderTypeLimit, Price: 1, Quantity: 10})
	require.False(t, res.Passed)
}
