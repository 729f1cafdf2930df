// Package balance implements UBSCore, the sole owner of every user's
// balance state. UBSCore runs on a single goroutine fed by order_q
// (pre-trade) and balance_update_q (post-trade settlement and cancel
// unlocks) and is the only code in the core allowed to mutate a Balance.
//
// Each (user, asset) balance carries two independent monotonic counters:
// lock_version advances on LOCK/UNLOCK/REFUND_FROZEN, settle_version
// advances on SPEND_FROZEN/CREDIT. They are kept independent, rather than a
// single version number, because the order-stream and trade-stream inputs
// to UBSCore interleave non-deterministically across restarts — a replay
// that processes a cancel before its corresponding fill (or vice versa)
// must still arrive at the same final balance and the same pair of final
// counters, which only holds if each counter only ever advances along its
// own causal chain.
package balance

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/rs/zerolog"

	"github.com/rishav/exchange-core/internal/config"
	"github.com/rishav/exchange-core/internal/corefail"
	"github.com/rishav/exchange-core/internal/events"
	"github.com/rishav/exchange-core/internal/orders"
)

// Balance is the avail/frozen state for a single (user, asset) pair.
type Balance struct {
	Avail         int64
	Frozen        int64
	LockVersion   uint64
	SettleVersion uint64
}

// Core is UBSCore: the in-memory balance ledger plus the pre-trade lock /
// post-trade settle / cancel-unlock operations the spec names. It keeps no
// pending-orders map — everything it needs to settle or unlock a fill or a
// cancel is carried on the Order/Fill values passed in, not looked up here.
type Core struct {
	reg *config.Registry
	log zerolog.Logger

	// balances[userID][assetID]
	balances map[uint64]map[uint32]*Balance
}

// NewCore creates an empty UBSCore ledger.
func NewCore(reg *config.Registry, log zerolog.Logger) *Core {
	return &Core{
		reg:      reg,
		log:      log,
		balances: make(map[uint64]map[uint32]*Balance),
	}
}

func (c *Core) balanceOf(userID uint64, assetID uint32) *Balance {
	byAsset, ok := c.balances[userID]
	if !ok {
		byAsset = make(map[uint32]*Balance)
		c.balances[userID] = byAsset
	}
	b, ok := byAsset[assetID]
	if !ok {
		b = &Balance{}
		byAsset[assetID] = b
	}
	return b
}

// Snapshot returns a copy of a user's balance for the given asset, used by
// tests and read-only inspection. It never returns UBSCore's internal
// pointer.
func (c *Core) Snapshot(userID uint64, assetID uint32) Balance {
	return *c.balanceOf(userID, assetID)
}

func newBalanceEvent(seqID uint64, userID uint64, assetID uint32, kind events.BalanceEventType, amount int64, b *Balance) events.BalanceEvent {
	return events.BalanceEvent{
		Event: events.Event{
			SequenceNum: seqID,
			Timestamp:   orders.Now(),
			Type:        events.EventTypeBalance,
		},
		UserID:        userID,
		AssetID:       assetID,
		Kind:          kind,
		Amount:        amount,
		LockVersion:   b.LockVersion,
		SettleVersion: b.SettleVersion,
		AvailAfter:    b.Avail,
		FrozenAfter:   b.Frozen,
	}
}

// scaledNotional computes price*qty/qty_unit in a 128-bit intermediate so
// the multiply can never silently wrap: overflow is detected on the raw
// widening product, before any division narrows it back down, so a product
// that doesn't fit in 64 bits is rejected even if dividing by qty_unit would
// have brought the quotient back into range.
func scaledNotional(sym config.Symbol, price, qty int64) (amount int64, overflow bool) {
	hi, lo := bits.Mul64(uint64(price), uint64(qty))
	if hi != 0 {
		return 0, true
	}
	q := lo / sym.QtyUnit()
	if q > uint64(math.MaxInt64) {
		return 0, true
	}
	return int64(q), false
}

// Deposit credits avail directly; deposits are not escrowed (the full
// external deposit/withdraw lifecycle is out of scope).
func (c *Core) Deposit(seqID uint64, userID uint64, assetID uint32, amount int64) events.BalanceEvent {
	b := c.balanceOf(userID, assetID)
	b.Avail += amount
	b.SettleVersion++
	ev := newBalanceEvent(seqID, userID, assetID, events.BalanceDeposit, amount, b)
	return ev
}

// Withdraw debits avail directly. Returns an error if avail is insufficient.
func (c *Core) Withdraw(seqID uint64, userID uint64, assetID uint32, amount int64) (events.BalanceEvent, error) {
	b := c.balanceOf(userID, assetID)
	if b.Avail < amount {
		return events.BalanceEvent{}, fmt.Errorf("balance: insufficient avail for withdraw")
	}
	b.Avail -= amount
	b.SettleVersion++
	return newBalanceEvent(seqID, userID, assetID, events.BalanceWithdraw, amount, b), nil
}

// requiredLock computes the asset and amount an order must lock before it
// can enter the matching engine, using a 128-bit intermediate product so a
// price*quantity overflow is detected and rejected rather than silently
// wrapping (spec invariant: overflow is a hard rejection, never undefined
// behavior). math/bits is used directly rather than a bignum library: this
// is a single widening multiply-and-compare, not general arbitrary
// precision arithmetic, and bits.Mul64 is the idiomatic stdlib primitive
// for exactly that.
func requiredLock(sym config.Symbol, order *orders.Order) (assetID uint32, amount int64, overflow bool) {
	if order.Side == orders.SideSell {
		return sym.BaseAssetID, order.Quantity, false
	}

	// BUY: market orders (when enabled) carry their max notional directly
	// in Price rather than a per-unit limit.
	if order.Type == orders.OrderTypeMarket {
		return sym.QuoteAssetID, order.Price, false
	}

	amount, overflow := scaledNotional(sym, order.Price, order.Quantity)
	return sym.QuoteAssetID, amount, overflow
}

// PreTradeLock validates and, if acceptable, freezes the funds an order
// requires before it may be handed to the matching engine. The caller is
// expected to have already stamped order.SequenceNum/Timestamp.
func (c *Core) PreTradeLock(order *orders.Order) (ev events.BalanceEvent, reason orders.RejectReason, ok bool) {
	sym, found := c.reg.Symbol(order.SymbolID)
	if !found {
		return events.BalanceEvent{}, orders.RejectUnknownSymbol, false
	}
	if order.Quantity <= 0 {
		return events.BalanceEvent{}, orders.RejectInvalidQty, false
	}
	if order.Type == orders.OrderTypeLimit && order.Price <= 0 {
		return events.BalanceEvent{}, orders.RejectInvalidPrice, false
	}
	if order.Type == orders.OrderTypeMarket && order.Side == orders.SideBuy {
		if !c.reg.Matching.AllowMarketBuy {
			return events.BalanceEvent{}, orders.RejectMarketBuyDisabled, false
		}
		if order.Price <= 0 {
			return events.BalanceEvent{}, orders.RejectInvalidPrice, false
		}
	}

	assetID, amount, overflow := requiredLock(sym, order)
	if overflow {
		return events.BalanceEvent{}, orders.RejectOverflow, false
	}

	b := c.balanceOf(order.UserID, assetID)
	if b.Avail < amount {
		return events.BalanceEvent{}, orders.RejectInsufficientBalance, false
	}

	b.Avail -= amount
	b.Frozen += amount
	b.LockVersion++
	ev = newBalanceEvent(order.SequenceNum, order.UserID, assetID, events.BalanceLock, amount, b)
	return ev, orders.RejectNone, true
}

// CancelUnlock releases the still-frozen funds backing an order's unfilled
// remainder. remainingQty is the quantity that was resting (or never
// matched, for an expired IOC/FOK) when the cancel/expiry happened.
func (c *Core) CancelUnlock(seqID uint64, order *orders.Order, remainingQty int64) events.BalanceEvent {
	sym, _ := c.reg.Symbol(order.SymbolID)
	var assetID uint32
	var amount int64
	if order.Side == orders.SideSell {
		assetID, amount = sym.BaseAssetID, remainingQty
	} else if order.Type == orders.OrderTypeMarket {
		// Market buy: remaining locked notional is the pro-rata share of
		// the original cap corresponding to the unfilled quantity.
		assetID = sym.QuoteAssetID
		if order.Quantity > 0 {
			amount = order.Price * remainingQty / order.Quantity
		}
	} else {
		assetID = sym.QuoteAssetID
		amount, _ = scaledNotional(sym, order.Price, remainingQty)
	}

	b := c.balanceOf(order.UserID, assetID)
	if amount > b.Frozen {
		corefail.Halt(c.log, "cancel unlock would underflow frozen", map[string]any{
			"user_id": order.UserID, "asset_id": assetID, "amount": amount, "frozen": b.Frozen, "order_id": order.ID,
		})
	}
	b.Frozen -= amount
	b.Avail += amount
	b.LockVersion++
	return newBalanceEvent(seqID, order.UserID, assetID, events.BalanceUnlock, amount, b)
}

// SettleFill applies one matched fill: spends the taker's and maker's
// frozen funds and credits the counter-asset to each, plus a price
// improvement refund of over-locked quote to a BUY taker whose limit
// exceeded the execution price. It returns every BalanceEvent produced, in
// the fixed order spend-taker, credit-taker, spend-maker, credit-maker,
// refund (if any), so the balance events for a single fill are always
// emitted in the same order.
func (c *Core) SettleFill(seqID uint64, symbolID uint32, taker, maker *orders.Order, fill orders.Fill) []events.BalanceEvent {
	sym, _ := c.reg.Symbol(symbolID)
	notional, overflow := scaledNotional(sym, fill.Price, fill.Quantity)
	if overflow {
		corefail.Halt(c.log, "fill notional overflowed past pre-trade admission", map[string]any{
			"symbol_id": symbolID, "price": fill.Price, "quantity": fill.Quantity, "trade_id": fill.TradeID,
		})
	}

	var evs []events.BalanceEvent

	takerSpendAsset, takerSpendAmt := sym.QuoteAssetID, notional
	takerCreditAsset, takerCreditAmt := sym.BaseAssetID, fill.Quantity
	makerSpendAsset, makerSpendAmt := sym.BaseAssetID, fill.Quantity
	makerCreditAsset, makerCreditAmt := sym.QuoteAssetID, notional
	if taker.Side == orders.SideSell {
		takerSpendAsset, takerSpendAmt = sym.BaseAssetID, fill.Quantity
		takerCreditAsset, takerCreditAmt = sym.QuoteAssetID, notional
		makerSpendAsset, makerSpendAmt = sym.QuoteAssetID, notional
		makerCreditAsset, makerCreditAmt = sym.BaseAssetID, fill.Quantity
	}

	evs = append(evs, c.spendFrozen(seqID, taker.UserID, takerSpendAsset, takerSpendAmt, taker.ID, fill.TradeID))
	evs = append(evs, c.credit(seqID, taker.UserID, takerCreditAsset, takerCreditAmt, taker.ID, fill.TradeID))
	evs = append(evs, c.spendFrozen(seqID, maker.UserID, makerSpendAsset, makerSpendAmt, maker.ID, fill.TradeID))
	evs = append(evs, c.credit(seqID, maker.UserID, makerCreditAsset, makerCreditAmt, maker.ID, fill.TradeID))

	if fill.PriceImprovement > 0 && taker.Side == orders.SideBuy {
		refund, overflow := scaledNotional(sym, fill.PriceImprovement, fill.Quantity)
		if overflow {
			corefail.Halt(c.log, "price-improvement refund overflowed past pre-trade admission", map[string]any{
				"symbol_id": symbolID, "price_improvement": fill.PriceImprovement, "quantity": fill.Quantity, "trade_id": fill.TradeID,
			})
		}
		evs = append(evs, c.refundFrozen(seqID, taker.UserID, sym.QuoteAssetID, refund, taker.ID, fill.TradeID))
	}

	return evs
}

func (c *Core) spendFrozen(seqID uint64, userID uint64, assetID uint32, amount int64, orderID, tradeID uint64) events.BalanceEvent {
	b := c.balanceOf(userID, assetID)
	if amount > b.Frozen {
		corefail.Halt(c.log, "spend frozen would underflow frozen", map[string]any{
			"user_id": userID, "asset_id": assetID, "amount": amount, "frozen": b.Frozen, "order_id": orderID, "trade_id": tradeID,
		})
	}
	b.Frozen -= amount
	b.SettleVersion++
	ev := newBalanceEvent(seqID, userID, assetID, events.BalanceSpendFrozen, amount, b)
	ev.RefOrderID, ev.RefTradeID = orderID, tradeID
	return ev
}

func (c *Core) credit(seqID uint64, userID uint64, assetID uint32, amount int64, orderID, tradeID uint64) events.BalanceEvent {
	b := c.balanceOf(userID, assetID)
	b.Avail += amount
	b.SettleVersion++
	ev := newBalanceEvent(seqID, userID, assetID, events.BalanceCredit, amount, b)
	ev.RefOrderID, ev.RefTradeID = orderID, tradeID
	return ev
}

func (c *Core) refundFrozen(seqID uint64, userID uint64, assetID uint32, amount int64, orderID, tradeID uint64) events.BalanceEvent {
	b := c.balanceOf(userID, assetID)
	if amount > b.Frozen {
		corefail.Halt(c.log, "refund frozen would underflow frozen", map[string]any{
			"user_id": userID, "asset_id": assetID, "amount": amount, "frozen": b.Frozen, "order_id": orderID, "trade_id": tradeID,
		})
	}
	b.Frozen -= amount
	b.Avail += amount
	b.LockVersion++
	ev := newBalanceEvent(seqID, userID, assetID, events.BalanceRefundFrozen, amount, b)
	ev.RefOrderID, ev.RefTradeID = orderID, tradeID
	return ev
}
