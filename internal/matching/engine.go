// Package matching implements the order matching engine.
//
// The matching engine is the deterministic core of the exchange. It
// consumes already-funded orders from valid_order_q (UBSCore has already
// locked the taker's funds) and matches them against resting orders using
// price-time priority (FIFO at each price level).
//
// Architecture: Single-Threaded Core (LMAX Disruptor Pattern)
//
// Why single-threaded?
//  1. Determinism: same input sequence always produces the same output.
//  2. No locks: eliminates contention in the hot path.
//  3. Replay: state can be rebuilt by replaying the WAL.
//  4. Simplicity: no races to debug.
package matching

import (
	"fmt"
	"sync/atomic"

	"github.com/rishav/exchange-core/internal/config"
	"github.com/rishav/exchange-core/internal/orderbook"
	"github.com/rishav/exchange-core/internal/orders"
)

// Engine is the single-threaded order matching engine.
//
// Thread Safety: ProcessOrder must only be called from a single goroutine.
// External synchronization is the pipeline runner feeding it off
// valid_order_q.
type Engine struct {
	reg        *config.Registry
	orderBooks map[uint32]*orderbook.OrderBook
	tradeID    uint64
}

// NewEngine creates a new matching engine and pre-creates a book for every
// symbol in the registry.
func NewEngine(reg *config.Registry) *Engine {
	e := &Engine{
		reg:        reg,
		orderBooks: make(map[uint32]*orderbook.OrderBook, len(reg.Symbols)),
	}
	for _, s := range reg.Symbols {
		e.orderBooks[s.ID] = orderbook.NewOrderBook(s.ID)
	}
	return e
}

// GetOrderBook returns the order book for a symbol.
func (e *Engine) GetOrderBook(symbolID uint32) *orderbook.OrderBook {
	return e.orderBooks[symbolID]
}

func (e *Engine) nextTradeID() uint64 {
	return atomic.AddUint64(&e.tradeID, 1)
}

// ProcessOrder matches an already-validated, already-funded order against
// the book for its symbol and returns the execution result. The caller
// (UBSCore's post-match settlement stage) is responsible for turning Fills
// into SPEND_FROZEN/CREDIT/REFUND_FROZEN balance events.
//
// Time complexity: O(M * log P) where M = number of fills, P = price levels.
func (e *Engine) ProcessOrder(order *orders.Order) *orders.ExecutionResult {
	result := &orders.ExecutionResult{
		Order:    order,
		Fills:    make([]orders.Fill, 0),
		Accepted: true,
	}

	book := e.orderBooks[order.SymbolID]
	if book == nil {
		result.Accepted = false
		result.RejectReason = orders.RejectUnknownSymbol
		order.Status = orders.OrderStatusRejected
		return result
	}

	order.Status = orders.OrderStatusNew

	fills := e.matchOrder(order, book)
	result.Fills = fills

	if order.IsFilled() {
		order.Status = orders.OrderStatusFilled
	} else if order.FilledQty > 0 {
		order.Status = orders.OrderStatusPartiallyFilled
	}

	remainingQty := order.RemainingQty()
	if remainingQty > 0 {
		switch {
		case order.Type == orders.OrderTypeMarket:
			// Market orders never rest; whatever could not be filled expires.
			order.Status = orders.OrderStatusExpired
		case order.TIF == orders.TIFIOC:
			order.Status = orders.OrderStatusExpired
		case order.TIF == orders.TIFFOK:
			// FOK should have been pre-checked by canFillEntirely and never
			// reach here with a partial fill; if it does, nothing matched.
			order.Status = orders.OrderStatusExpired
			result.RejectReason = orders.RejectUnfillable
		case order.TIF == orders.TIFGTC && order.Type == orders.OrderTypeLimit:
			book.AddOrder(order)
			result.RestingQty = remainingQty
		}
	}

	return result
}

// matchOrder attempts to match an incoming order against resting orders.
func (e *Engine) matchOrder(order *orders.Order, book *orderbook.OrderBook) []orders.Fill {
	var fills []orders.Fill

	if order.TIF == orders.TIFFOK {
		if !e.canFillEntirely(order, book) {
			return fills
		}
	}

	var getMatchLevel func() *orderbook.PriceLevel
	var priceAcceptable func(bookPrice int64) bool

	if order.Side == orders.SideBuy {
		getMatchLevel = book.GetBestAsk
		priceAcceptable = func(bookPrice int64) bool {
			if order.Type == orders.OrderTypeMarket {
				return true
			}
			return bookPrice <= order.Price
		}
	} else {
		getMatchLevel = book.GetBestBid
		priceAcceptable = func(bookPrice int64) bool {
			if order.Type == orders.OrderTypeMarket {
				return true
			}
			return bookPrice >= order.Price
		}
	}

	for order.RemainingQty() > 0 {
		level := getMatchLevel()
		if level == nil {
			break
		}
		if !priceAcceptable(level.Price) {
			break
		}

		for node := level.Head(); node != nil && order.RemainingQty() > 0; {
			makerOrder := node.Order

			fillQty := min64(order.RemainingQty(), makerOrder.RemainingQty())

			fill := orders.Fill{
				TradeID:          e.nextTradeID(),
				MakerOrderID:     makerOrder.ID,
				TakerOrderID:     order.ID,
				MakerUserID:      makerOrder.UserID,
				TakerUserID:      order.UserID,
				SymbolID:         order.SymbolID,
				Price:            level.Price, // maker's price: price improvement for taker
				Quantity:         fillQty,
				Timestamp:        orders.Now(),
				TakerSide:        order.Side,
				PriceImprovement: priceImprovement(order, level.Price),
			}
			fills = append(fills, fill)

			order.FilledQty += fillQty
			makerOrder.FilledQty += fillQty

			if makerOrder.IsFilled() {
				makerOrder.Status = orders.OrderStatusFilled
			} else {
				makerOrder.Status = orders.OrderStatusPartiallyFilled
			}

			next := node.Next()
			level.UpdateQuantity(-fillQty)
			if makerOrder.IsFilled() {
				book.CancelOrder(makerOrder.ID)
			}
			node = next
		}
	}

	return fills
}

// priceImprovement returns the per-unit amount, in quote minor units, by
// which execPrice bettered the taker's own limit. A market order has no
// limit to improve on (it pays the locked max-notional cap, if any, via a
// single post-trade refund computed by UBSCore, not per-fill here).
func priceImprovement(taker *orders.Order, execPrice int64) int64 {
	if taker.Type == orders.OrderTypeMarket {
		return 0
	}
	if taker.Side == orders.SideBuy {
		if taker.Price > execPrice {
			return taker.Price - execPrice
		}
		return 0
	}
	if execPrice > taker.Price {
		return execPrice - taker.Price
	}
	return 0
}

// canFillEntirely checks if a FOK order can be completely filled against
// the resting liquidity currently in the book.
func (e *Engine) canFillEntirely(order *orders.Order, book *orderbook.OrderBook) bool {
	remainingQty := order.Quantity
	var depth []*orderbook.PriceLevel
	var priceOK func(int64) bool

	if order.Side == orders.SideBuy {
		depth = book.GetAskDepth(0)
		priceOK = func(p int64) bool {
			return order.Type == orders.OrderTypeMarket || p <= order.Price
		}
	} else {
		depth = book.GetBidDepth(0)
		priceOK = func(p int64) bool {
			return order.Type == orders.OrderTypeMarket || p >= order.Price
		}
	}

	for _, level := range depth {
		if !priceOK(level.Price) {
			break
		}
		if level.TotalQty >= remainingQty {
			remainingQty = 0
			break
		}
		remainingQty -= level.TotalQty
	}

	return remainingQty == 0
}

// CancelOrder cancels an existing resting order.
func (e *Engine) CancelOrder(symbolID uint32, orderID uint64) (*orders.Order, error) {
	book := e.orderBooks[symbolID]
	if book == nil {
		return nil, fmt.Errorf("matching: unknown symbol %d", symbolID)
	}

	order := book.CancelOrder(orderID)
	if order == nil {
		return nil, fmt.Errorf("matching: order %d not found", orderID)
	}

	order.Status = orders.OrderStatusCancelled
	return order, nil
}

// GetOrder retrieves a resting order by symbol and ID.
func (e *Engine) GetOrder(symbolID uint32, orderID uint64) *orders.Order {
	book := e.orderBooks[symbolID]
	if book == nil {
		return nil
	}
	return book.GetOrder(orderID)
}

// Symbols returns all tradable symbol IDs.
func (e *Engine) Symbols() []uint32 {
	ids := make([]uint32, 0, len(e.orderBooks))
	for id := range e.orderBooks {
		ids = append(ids, id)
	}
	return ids
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
