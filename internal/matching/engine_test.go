package matching

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rishav/exchange-core/internal/config"
	"github.com/rishav/exchange-core/internal/orders"
)

func testEngine() *Engine {
	reg := config.DefaultRegistry()
	return NewEngine(reg)
}

func TestGTCRestsWhenNoMatch(t *testing.T) {
	e := testEngine()
	res := e.ProcessOrder(&orders.Order{ID: 1, SymbolID: 1, Side: orders.SideBuy, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 100, Quantity: 10})
	require.True(t, res.Accepted)
	require.Empty(t, res.Fills)
	require.Equal(t, orders.OrderStatusNew, res.Order.Status)
	require.Equal(t, int64(10), res.RestingQty)
}

func TestPriceTimePriority(t *testing.T) {
	e := testEngine()
	e.ProcessOrder(&orders.Order{ID: 1, SymbolID: 1, Side: orders.SideSell, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 100, Quantity: 5})
	e.ProcessOrder(&orders.Order{ID: 2, SymbolID: 1, Side: orders.SideSell, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 99, Quantity: 5})

	res := e.ProcessOrder(&orders.Order{ID: 3, SymbolID: 1, Side: orders.SideBuy, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 100, Quantity: 5})
	require.Len(t, res.Fills, 1)
	require.Equal(t, uint64(2), res.Fills[0].MakerOrderID) // better price (99) fills first
}

func TestIOCExpiresUnfilledRemainder(t *testing.T) {
	e := testEngine()
	e.ProcessOrder(&orders.Order{ID: 1, SymbolID: 1, Side: orders.SideSell, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 100, Quantity: 3})

	res := e.ProcessOrder(&orders.Order{ID: 2, SymbolID: 1, Side: orders.SideBuy, Type: orders.OrderTypeLimit, TIF: orders.TIFIOC, Price: 100, Quantity: 10})
	require.Equal(t, orders.OrderStatusExpired, res.Order.Status)
	require.Equal(t, int64(3), res.Order.FilledQty)
	require.Zero(t, res.RestingQty)
	require.Nil(t, e.GetOrderBook(1).GetBestBid())
}

func TestFOKRejectsWhenUnfillable(t *testing.T) {
	e := testEngine()
	e.ProcessOrder(&orders.Order{ID: 1, SymbolID: 1, Side: orders.SideSell, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 100, Quantity: 3})

	res := e.ProcessOrder(&orders.Order{ID: 2, SymbolID: 1, Side: orders.SideBuy, Type: orders.OrderTypeLimit, TIF: orders.TIFFOK, Price: 100, Quantity: 10})
	require.Empty(t, res.Fills)
	require.Equal(t, orders.OrderStatusExpired, res.Order.Status)
	require.Equal(t, orders.RejectUnfillable, res.RejectReason)
}

func TestFOKFillsCompletelyWhenLiquiditySufficient(t *testing.T) {
	e := testEngine()
	e.ProcessOrder(&orders.Order{ID: 1, SymbolID: 1, Side: orders.SideSell, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 100, Quantity: 10})

	res := e.ProcessOrder(&orders.Order{ID: 2, SymbolID: 1, Side: orders.SideBuy, Type: orders.OrderTypeLimit, TIF: orders.TIFFOK, Price: 100, Quantity: 10})
	require.Len(t, res.Fills, 1)
	require.Equal(t, orders.OrderStatusFilled, res.Order.Status)
}

func TestPriceImprovementCreditedToTaker(t *testing.T) {
	e := testEngine()
	e.ProcessOrder(&orders.Order{ID: 1, SymbolID: 1, Side: orders.SideSell, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 95, Quantity: 10})

	res := e.ProcessOrder(&orders.Order{ID: 2, SymbolID: 1, Side: orders.SideBuy, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 100, Quantity: 10})
	require.Len(t, res.Fills, 1)
	require.Equal(t, int64(95), res.Fills[0].Price)
	require.Equal(t, int64(5), res.Fills[0].PriceImprovement)
}

func TestCancelOrderRemovesRestingOrder(t *testing.T) {
	e := testEngine()
	e.ProcessOrder(&orders.Order{ID: 1, SymbolID: 1, Side: orders.SideBuy, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 100, Quantity: 10})

	order, err := e.CancelOrder(1, 1)
	require.NoError(t, err)
	require.Equal(t, orders.OrderStatusCancelled, order.Status)
	require.Nil(t, e.GetOrder(1, 1))
}

func TestCancelUnknownOrderErrors(t *testing.T) {
	e := testEngine()
	_, err := e.CancelOrder(1, 999)
	require.Error(t, err)
}
