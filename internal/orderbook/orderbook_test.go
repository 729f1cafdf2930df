package orderbook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rishav/exchange-core/internal/orders"
)

func newOrder(id uint64, side orders.Side, price, qty int64) *orders.Order {
	return &orders.Order{ID: id, SymbolID: 1, Side: side, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: price, Quantity: qty}
}

func TestAddOrderRejectsDuplicateID(t *testing.T) {
	ob := NewOrderBook(1)
	require.NoError(t, ob.AddOrder(newOrder(1, orders.SideBuy, 100, 5)))
	require.Error(t, ob.AddOrder(newOrder(1, orders.SideBuy, 101, 5)))
}

func TestBestBidAskAndSpread(t *testing.T) {
	ob := NewOrderBook(1)
	require.NoError(t, ob.AddOrder(newOrder(1, orders.SideBuy, 99, 10)))
	require.NoError(t, ob.AddOrder(newOrder(2, orders.SideBuy, 100, 10)))
	require.NoError(t, ob.AddOrder(newOrder(3, orders.SideSell, 105, 10)))
	require.NoError(t, ob.AddOrder(newOrder(4, orders.SideSell, 103, 10)))

	require.Equal(t, int64(100), ob.GetBestBid().Price)
	require.Equal(t, int64(103), ob.GetBestAsk().Price)
	require.Equal(t, int64(3), ob.GetSpread())
	require.Equal(t, int64(101), ob.GetMidPrice())
}

func TestCancelOrderRemovesEmptyPriceLevel(t *testing.T) {
	ob := NewOrderBook(1)
	require.NoError(t, ob.AddOrder(newOrder(1, orders.SideBuy, 100, 10)))
	require.Equal(t, 1, ob.BidLevels())

	cancelled := ob.CancelOrder(1)
	require.NotNil(t, cancelled)
	require.Equal(t, 0, ob.BidLevels())
	require.Nil(t, ob.GetBestBid())
}

func TestFIFOOrderingWithinPriceLevel(t *testing.T) {
	ob := NewOrderBook(1)
	require.NoError(t, ob.AddOrder(newOrder(1, orders.SideSell, 100, 5)))
	require.NoError(t, ob.AddOrder(newOrder(2, orders.SideSell, 100, 5)))

	level := ob.GetBestAsk()
	head := level.Head()
	require.Equal(t, uint64(1), head.Order.ID)
	require.Equal(t, uint64(2), head.Next().Order.ID)
}

func TestGetDepthRespectsLimit(t *testing.T) {
	ob := NewOrderBook(1)
	for i, price := range []int64{100, 101, 102, 103} {
		require.NoError(t, ob.AddOrder(newOrder(uint64(i+1), orders.SideSell, price, 1)))
	}
	depth := ob.GetAskDepth(2)
	require.Len(t, depth, 2)
	require.Equal(t, int64(100), depth[0].Price)
	require.Equal(t, int64(101), depth[1].Price)
}
