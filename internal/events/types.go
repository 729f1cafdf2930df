// Package events defines the audit event types emitted alongside the WAL.
//
// Event Sourcing Pattern: instead of only storing current state, the core
// also emits one event per state change. The WAL (package wal) is the
// durability mechanism; its payloads are encoded separately by package
// pipeline, not from these structs. BalanceEvent is what UBSCore publishes
// onto balance_event_q for the Settlement consumer.
package events

import (
	"github.com/rishav/exchange-core/internal/orders"
)

// EventType identifies the type of event.
type EventType uint8

const (
	EventTypeNewOrder EventType = iota + 1
	EventTypeCancelOrder
	EventTypeOrderAccepted
	EventTypeOrderRejected
	EventTypeFill
	EventTypeOrderCancelled
	EventTypeOrderExpired
	EventTypeBalance
)

func (t EventType) String() string {
	switch t {
	case EventTypeNewOrder:
		return "NEW_ORDER"
	case EventTypeCancelOrder:
		return "CANCEL_ORDER"
	case EventTypeOrderAccepted:
		return "ORDER_ACCEPTED"
	case EventTypeOrderRejected:
		return "ORDER_REJECTED"
	case EventTypeFill:
		return "FILL"
	case EventTypeOrderCancelled:
		return "ORDER_CANCELLED"
	case EventTypeOrderExpired:
		return "ORDER_EXPIRED"
	case EventTypeBalance:
		return "BALANCE"
	default:
		return "UNKNOWN"
	}
}

// Event is the base event structure embedded by every concrete event type.
type Event struct {
	SequenceNum uint64
	Timestamp   int64
	Type        EventType
}

// NewOrderEvent represents a new order submission.
type NewOrderEvent struct {
	Event
	OrderID       uint64
	SymbolID      uint32
	Side          orders.Side
	OrderType     orders.OrderType
	TIF           orders.TimeInForce
	Price         int64
	Quantity      int64
	UserID        uint64
	ClientOrderID string
}

// CancelOrderEvent represents an order cancellation request.
type CancelOrderEvent struct {
	Event
	OrderID  uint64
	SymbolID uint32
	UserID   uint64
}

// OrderAcceptedEvent indicates an order was accepted.
type OrderAcceptedEvent struct {
	Event
	OrderID    uint64
	SymbolID   uint32
	RestingQty int64
}

// OrderRejectedEvent indicates an order was rejected.
type OrderRejectedEvent struct {
	Event
	OrderID      uint64
	SymbolID     uint32
	RejectReason orders.RejectReason
}

// FillEvent represents a trade execution.
type FillEvent struct {
	Event
	TradeID          uint64
	SymbolID         uint32
	Price            int64
	Quantity         int64
	MakerOrderID     uint64
	TakerOrderID     uint64
	MakerUserID      uint64
	TakerUserID      uint64
	TakerSide        orders.Side
	PriceImprovement int64
}

// OrderCancelledEvent indicates an order was cancelled.
type OrderCancelledEvent struct {
	Event
	OrderID      uint64
	SymbolID     uint32
	CancelledQty int64
}

// OrderExpiredEvent indicates an IOC/FOK order's unfilled remainder was
// retired instead of resting.
type OrderExpiredEvent struct {
	Event
	OrderID    uint64
	SymbolID   uint32
	ExpiredQty int64
}

// BalanceEventType enumerates the kinds of balance mutation UBSCore emits.
type BalanceEventType uint8

const (
	BalanceLock BalanceEventType = iota + 1
	BalanceUnlock
	BalanceSpendFrozen
	BalanceCredit
	BalanceRefundFrozen
	BalanceDeposit
	BalanceWithdraw
)

func (t BalanceEventType) String() string {
	switch t {
	case BalanceLock:
		return "LOCK"
	case BalanceUnlock:
		return "UNLOCK"
	case BalanceSpendFrozen:
		return "SPEND_FROZEN"
	case BalanceCredit:
		return "CREDIT"
	case BalanceRefundFrozen:
		return "REFUND_FROZEN"
	case BalanceDeposit:
		return "DEPOSIT"
	case BalanceWithdraw:
		return "WITHDRAW"
	default:
		return "UNKNOWN"
	}
}

// BalanceEvent records a single mutation to a (user, asset) balance.
type BalanceEvent struct {
	Event
	UserID        uint64
	AssetID       uint32
	Kind          BalanceEventType
	Amount        int64
	LockVersion   uint64
	SettleVersion uint64
	RefOrderID    uint64
	RefTradeID    uint64
	AvailAfter    int64
	FrozenAfter   int64
}
