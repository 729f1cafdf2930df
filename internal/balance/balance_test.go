package balance

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rishav/exchange-core/internal/config"
	"github.com/rishav/exchange-core/internal/orders"
)

func testRegistry() *config.Registry {
	return config.DefaultRegistry()
}

func TestDepositWithdraw(t *testing.T) {
	c := NewCore(testRegistry(), zerolog.Nop())

	ev := c.Deposit(1, 7, 1, 1_000_000)
	require.Equal(t, int64(1_000_000), ev.Amount)
	require.Equal(t, uint64(1), ev.SettleVersion)
	require.Equal(t, int64(1_000_000), ev.AvailAfter)

	bal := c.Snapshot(7, 1)
	require.Equal(t, int64(1_000_000), bal.Avail)

	_, err := c.Withdraw(2, 7, 1, 2_000_000)
	require.Error(t, err)

	wEv, err := c.Withdraw(3, 7, 1, 400_000)
	require.NoError(t, err)
	require.Equal(t, int64(400_000), wEv.Amount)
	require.Equal(t, int64(600_000), c.Snapshot(7, 1).Avail)
}

// Numbers below mirror the spec's own worked examples (qty_unit = 10^8,
// price_unit = 10^2 for the registry's BTC-USDT symbol): quantities are
// denominated in satoshis, so price*qty routinely exceeds 10^12 and only
// collapses to a sane quote amount once divided by qty_unit. Toy numbers
// like price=100/qty=10 would let a missing qty_unit division pass
// unnoticed, since the raw product alone happens to look plausible.

func TestPreTradeLockInsufficientBalance(t *testing.T) {
	c := NewCore(testRegistry(), zerolog.Nop())
	c.Deposit(1, 100, 1, 10)

	order := &orders.Order{
		ID: 1, UserID: 100, SymbolID: 1, Side: orders.SideBuy,
		Type: orders.OrderTypeLimit, TIF: orders.TIFGTC,
		Price: 100, Quantity: 1_000_000_000, SequenceNum: 2,
	}
	_, reason, ok := c.PreTradeLock(order)
	require.False(t, ok)
	require.Equal(t, orders.RejectInsufficientBalance, reason)
	require.Equal(t, int64(10), c.Snapshot(100, 1).Avail)
}

func TestPreTradeLockLocksQuoteForBuy(t *testing.T) {
	c := NewCore(testRegistry(), zerolog.Nop())
	c.Deposit(1, 100, 1, 1_000_000)

	order := &orders.Order{
		ID: 1, UserID: 100, SymbolID: 1, Side: orders.SideBuy,
		Type: orders.OrderTypeLimit, TIF: orders.TIFGTC,
		Price: 50_000, Quantity: 100_000_000, SequenceNum: 2,
	}
	ev, reason, ok := c.PreTradeLock(order)
	require.True(t, ok)
	require.Equal(t, orders.RejectNone, reason)
	require.Equal(t, int64(50_000), ev.Amount)

	bal := c.Snapshot(100, 1)
	require.Equal(t, int64(950_000), bal.Avail)
	require.Equal(t, int64(50_000), bal.Frozen)
	require.Equal(t, uint64(1), bal.LockVersion)
	require.Equal(t, bal.Avail, ev.AvailAfter)
	require.Equal(t, bal.Frozen, ev.FrozenAfter)
}

func TestPreTradeLockOverflowRejected(t *testing.T) {
	c := NewCore(testRegistry(), zerolog.Nop())
	order := &orders.Order{
		ID: 1, UserID: 7, SymbolID: 1, Side: orders.SideBuy,
		Type: orders.OrderTypeLimit, TIF: orders.TIFGTC,
		Price: 84_956_010_000, Quantity: 256_284_400, SequenceNum: 1,
	}
	_, reason, ok := c.PreTradeLock(order)
	require.False(t, ok)
	require.Equal(t, orders.RejectOverflow, reason)
}

func TestCancelUnlockReturnsFrozenFunds(t *testing.T) {
	c := NewCore(testRegistry(), zerolog.Nop())
	c.Deposit(1, 100, 1, 1_000_000)

	order := &orders.Order{
		ID: 1, UserID: 100, SymbolID: 1, Side: orders.SideBuy,
		Type: orders.OrderTypeLimit, TIF: orders.TIFGTC,
		Price: 50_000, Quantity: 100_000_000, SequenceNum: 2,
	}
	_, _, ok := c.PreTradeLock(order)
	require.True(t, ok)

	ev := c.CancelUnlock(3, order, 100_000_000)
	require.Equal(t, int64(50_000), ev.Amount)
	bal := c.Snapshot(100, 1)
	require.Equal(t, int64(1_000_000), bal.Avail)
	require.Equal(t, int64(0), bal.Frozen)
}

func TestSettleFillConservesFunds(t *testing.T) {
	c := NewCore(testRegistry(), zerolog.Nop())
	c.Deposit(1, 1, 1, 100_000_000) // buyer quote
	c.Deposit(2, 2, 2, 100_000_000) // seller base (1.0 unit)

	buyer := &orders.Order{ID: 1, UserID: 1, SymbolID: 1, Side: orders.SideBuy, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 55_000, Quantity: 50_000_000, SequenceNum: 3}
	seller := &orders.Order{ID: 2, UserID: 2, SymbolID: 1, Side: orders.SideSell, Type: orders.OrderTypeLimit, TIF: orders.TIFGTC, Price: 50_000, Quantity: 100_000_000, SequenceNum: 4}

	_, _, ok := c.PreTradeLock(buyer)
	require.True(t, ok)
	_, _, ok = c.PreTradeLock(seller)
	require.True(t, ok)

	// buyer locked 55000*50000000/1e8 = 27,500; fill executes at the
	// maker's (seller's) price of 50000 for the full 50,000,000 quantity.
	fill := orders.Fill{
		TradeID: 1, MakerOrderID: 2, TakerOrderID: 1,
		MakerUserID: 2, TakerUserID: 1, SymbolID: 1,
		Price: 50_000, Quantity: 50_000_000, PriceImprovement: 5_000,
	}
	c.SettleFill(5, 1, buyer, seller, fill)

	buyerQuote := c.Snapshot(1, 1)
	buyerBase := c.Snapshot(1, 2)
	sellerQuote := c.Snapshot(2, 1)
	sellerBase := c.Snapshot(2, 2)

	// notional = 50000*50000000/1e8 = 25,000; refund = 5000*50000000/1e8 = 2,500
	require.Equal(t, int64(50_000_000), buyerBase.Avail)
	require.Equal(t, int64(25_000), sellerQuote.Avail)
	require.Equal(t, int64(50_000_000), sellerBase.Frozen)

	// buyer locked 27,500, spent 25,000, refunded 2,500 -> frozen 0, and
	// avail is the 100,000,000 deposit less the 25,000 actually spent
	require.Equal(t, int64(0), buyerQuote.Frozen)
	require.Equal(t, int64(99_975_000), buyerQuote.Avail)
}
