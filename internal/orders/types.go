// Package orders defines the core order types and related data structures
// for the matching core.
//
// Key Design Decisions:
//
// 1. Fixed-Point Arithmetic: prices and quantities are stored as int64 in
//    the asset's native minor unit (e.g. satoshis, cents) to avoid
//    floating-point errors. Decimal placement is a property of the asset
//    registry, not of the order itself.
//
// 2. Sequence Numbers: every order receives a globally unique, monotonically
//    increasing sequence number assigned by the ingestion stage. This enables
//    deterministic replay, fair ordering, and gap detection.
//
// 3. Time Representation: timestamps use nanoseconds since Unix epoch (int64).
package orders

import (
	"fmt"
	"time"
)

// Side represents the side of an order (buy or sell).
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType represents the execution semantics of an order's price.
type OrderType int

const (
	// OrderTypeLimit rests in the book until filled or cancelled. Only
	// executes at the specified price or better.
	OrderTypeLimit OrderType = iota

	// OrderTypeMarket executes against the best available price(s). A
	// market BUY must carry a non-zero Price interpreted as a max-notional
	// cap when config.Matching.AllowMarketBuy is set; otherwise market buys
	// are rejected.
	OrderTypeMarket
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeMarket:
		return "MARKET"
	default:
		return "UNKNOWN"
	}
}

// TimeInForce is orthogonal to OrderType: it governs what happens to any
// quantity that cannot be matched immediately.
type TimeInForce int

const (
	// TIFGTC (Good-Til-Cancelled) rests unfilled quantity in the book.
	// Only valid for limit orders.
	TIFGTC TimeInForce = iota

	// TIFIOC (Immediate-or-Cancel) fills whatever quantity is immediately
	// available and expires the remainder.
	TIFIOC

	// TIFFOK (Fill-or-Kill) must fill its entire quantity immediately or
	// the whole order is rejected with no fills at all.
	TIFFOK
)

func (t TimeInForce) String() string {
	switch t {
	case TIFGTC:
		return "GTC"
	case TIFIOC:
		return "IOC"
	case TIFFOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus represents the current state of an order.
type OrderStatus int

const (
	OrderStatusNew OrderStatus = iota
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
	// OrderStatusExpired marks an IOC/FOK order whose unmatched remainder
	// was not allowed to rest and was retired instead of cancelled.
	OrderStatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "NEW"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	case OrderStatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// RejectReason is a sealed set of pre-trade/validation failure codes.
// Kept as a closed enum (rather than free-form strings) so tests can assert
// on the reason class instead of parsing messages.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectOverflow
	RejectInsufficientBalance
	RejectNoSuchUser
	RejectUnknownSymbol
	RejectInvalidQty
	RejectInvalidPrice
	RejectMarketBuyDisabled
	RejectUnfillable // FOK that could not be filled entirely
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return ""
	case RejectOverflow:
		return "OVERFLOW"
	case RejectInsufficientBalance:
		return "INSUFFICIENT_BALANCE"
	case RejectNoSuchUser:
		return "NO_SUCH_USER"
	case RejectUnknownSymbol:
		return "UNKNOWN_SYMBOL"
	case RejectInvalidQty:
		return "INVALID_QTY"
	case RejectInvalidPrice:
		return "INVALID_PRICE"
	case RejectMarketBuyDisabled:
		return "MARKET_BUY_DISABLED"
	case RejectUnfillable:
		return "UNFILLABLE"
	default:
		return "UNKNOWN"
	}
}

// Order represents a single order in the matching core.
//
// Memory Layout: fields are ordered largest-first to minimize padding.
type Order struct {
	ID          uint64
	SequenceNum uint64
	UserID      uint64
	SymbolID    uint32

	// Price is the limit price in the quote asset's minor unit. For a
	// market BUY with config.Matching.AllowMarketBuy set, this field instead holds the
	// max notional (in quote minor units) the taker is willing to lock.
	Price int64

	Quantity      int64
	FilledQty     int64
	Timestamp     int64
	ClientOrderID string

	Side   Side
	Type   OrderType
	TIF    TimeInForce
	Status OrderStatus
}

// RemainingQty returns the unfilled quantity of the order.
func (o *Order) RemainingQty() int64 {
	return o.Quantity - o.FilledQty
}

// IsFilled returns true if the order has been completely filled.
func (o *Order) IsFilled() bool {
	return o.FilledQty >= o.Quantity
}

// IsActive returns true if the order can still be matched.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}

// String returns a human-readable representation of the order.
func (o *Order) String() string {
	return fmt.Sprintf("Order{ID:%d, User:%d, %s sym:%d %d@%d, Filled:%d, %s/%s, Status:%s}",
		o.ID, o.UserID, o.Side, o.SymbolID, o.Quantity, o.Price, o.FilledQty, o.Type, o.TIF, o.Status)
}

// Fill represents a single execution (trade) between two orders.
type Fill struct {
	TradeID      uint64
	MakerOrderID uint64
	TakerOrderID uint64
	MakerUserID  uint64
	TakerUserID  uint64
	SymbolID     uint32

	// Price is the execution price, always the maker's resting price.
	Price     int64
	Quantity  int64
	Timestamp int64
	TakerSide Side

	// PriceImprovement is the per-unit amount, in quote minor units, by
	// which the maker's price bettered the taker's limit. Zero unless the
	// taker is a BUY whose limit price exceeded the execution price, or a
	// SELL whose limit price was below it. For a BUY taker, UBSCore moves
	// PriceImprovement*Quantity/qty_unit of quote from the taker's frozen
	// balance back to avail; a SELL taker gets no refund, since the higher
	// execution price is already in its quote credit.
	PriceImprovement int64
}

// String returns a human-readable representation of the fill.
func (f *Fill) String() string {
	return fmt.Sprintf("Fill{Trade:%d, %d@%d, Maker:%d, Taker:%d}",
		f.TradeID, f.Quantity, f.Price, f.MakerOrderID, f.TakerOrderID)
}

// ExecutionResult contains the outcome of processing an order.
type ExecutionResult struct {
	Order        *Order
	Fills        []Fill
	Accepted     bool
	RejectReason RejectReason
	RestingQty   int64
}

// Now returns the current time in nanoseconds since epoch.
func Now() int64 {
	return time.Now().UnixNano()
}
