// Package pipeline wires the five named ring buffers (order_q,
// valid_order_q, trade_q, balance_update_q, balance_event_q) and their
// consumer goroutines into the end-to-end order-to-settlement path. It is
// the generalized descendant of the teacher's single ring-buffer
// EventProcessor/EventBatcher pair, split into the five SPSC stages the
// core's crash-recovery contract requires.
//
// Every queue is drained by exactly one goroutine, matching the single-
// writer-per-stage rule that makes WAL replay deterministic. order_q and
// valid_order_q use spin backpressure (latency-sensitive, never expected to
// back up under normal load); trade_q, balance_update_q, and
// balance_event_q use block backpressure, because those are the durability
// paths the spec forbids ever dropping from.
package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/rishav/exchange-core/internal/balance"
	"github.com/rishav/exchange-core/internal/config"
	"github.com/rishav/exchange-core/internal/corefail"
	"github.com/rishav/exchange-core/internal/disruptor"
	"github.com/rishav/exchange-core/internal/events"
	"github.com/rishav/exchange-core/internal/matching"
	"github.com/rishav/exchange-core/internal/orders"
	"github.com/rishav/exchange-core/internal/risk"
	"github.com/rishav/exchange-core/internal/settlement"
	"github.com/rishav/exchange-core/internal/wal"
)

// IngressOp distinguishes the kinds of client requests that flow through
// order_q. Deposit/Withdraw are funding ops, not trading ops, but they still
// flow through the same sequencer and WAL so a replay covers balance history
// end to end, not just the trading half of it.
type IngressOp int

const (
	OpPlaceOrder IngressOp = iota
	OpCancelOrder
	OpDeposit
	OpWithdraw
)

// IngressItem is what the sequencer publishes onto order_q.
type IngressItem struct {
	Op            IngressOp
	SeqID         uint64
	TSNano        int64
	Order         *orders.Order // set for OpPlaceOrder
	CancelSymbol  uint32        // set for OpCancelOrder
	CancelOrderID uint64
	CancelUserID  uint64

	// FundUserID/FundAssetID/FundAmount are set for OpDeposit/OpWithdraw.
	FundUserID  uint64
	FundAssetID uint32
	FundAmount  int64
}

// matchOutcome is what the matching stage publishes onto balance_update_q
// after running the engine. The matching stage does not publish onto
// trade_q: the balance-update stage does, once it has settled the
// outcome's fills, as a settlement.TradeBatch for the audit sinks.
type matchOutcome struct {
	order  *orders.Order
	result *orders.ExecutionResult
	makers map[uint64]*orders.Order // maker order snapshots, keyed by order ID, for settlement
}

type cancelOutcome struct {
	order        *orders.Order
	remainingQty int64
}

// balanceUpdateItem is the single message type balance_update_q carries:
// either a settlement for a set of fills, or an unlock for a cancel/expiry.
type balanceUpdateItem struct {
	match  *matchOutcome
	cancel *cancelOutcome
}

// Runner owns the five ring buffers and the goroutines that drain them.
type Runner struct {
	reg *config.Registry
	log zerolog.Logger

	walog *wal.WAL
	bal   *balance.Core
	eng   *matching.Engine
	sett  *settlement.Consumer
	risk  *risk.Checker

	orderQ         *disruptor.Ring[IngressItem]
	validOrderQ    *disruptor.Ring[*orders.Order]
	tradeQ         *disruptor.Ring[settlement.TradeBatch]
	balanceUpdateQ *disruptor.Ring[balanceUpdateItem]
	balanceEventQ  *disruptor.Ring[events.BalanceEvent]

	seqCounter atomic.Uint64
	stop       chan struct{}
	wg         sync.WaitGroup
}

// New builds a Runner and every ring buffer/goroutine it owns, but does not
// start the consumer goroutines — call Start for that.
func New(reg *config.Registry, log zerolog.Logger, walog *wal.WAL, bal *balance.Core, eng *matching.Engine, sett *settlement.Consumer, riskChecker *risk.Checker) *Runner {
	return &Runner{
		reg:            reg,
		log:            log,
		walog:          walog,
		bal:            bal,
		eng:            eng,
		sett:           sett,
		risk:           riskChecker,
		orderQ:         disruptor.NewRing[IngressItem](nextPow2(reg.Queue.OrderQ)),
		validOrderQ:    disruptor.NewRing[*orders.Order](nextPow2(reg.Queue.ValidOrderQ)),
		tradeQ:         disruptor.NewRing[settlement.TradeBatch](nextPow2(reg.Queue.TradeQ)),
		balanceUpdateQ: disruptor.NewRing[balanceUpdateItem](nextPow2(reg.Queue.BalanceUpdateQ)),
		balanceEventQ:  disruptor.NewRing[events.BalanceEvent](nextPow2(reg.Queue.BalanceEventQ)),
		stop:           make(chan struct{}),
	}
}

func nextPow2(n int) uint64 {
	if n <= 0 {
		return 1
	}
	p := uint64(1)
	for p < uint64(n) {
		p <<= 1
	}
	return p
}

// Start launches the four stage goroutines: ingestion->UBSCore (pre-trade),
// matching, UBSCore (post-trade/cancel), and settlement.
func (r *Runner) Start() {
	r.wg.Add(4)
	go r.runPreTradeStage()
	go r.runMatchingStage()
	go r.runBalanceUpdateStage()
	go r.runSettlementStage()
}

// Shutdown signals every stage to stop after draining what is already
// published, then waits for them to exit.
func (r *Runner) Shutdown() {
	close(r.stop)
	r.wg.Wait()
}

// Submit assigns a sequence number and publishes a new order onto order_q.
// It never drops: Publish blocks (spins) until a slot is free.
func (r *Runner) Submit(order *orders.Order) {
	seq := r.seqCounter.Add(1)
	order.SequenceNum = seq
	if order.Timestamp == 0 {
		order.Timestamp = orders.Now()
	}
	r.orderQ.Publish(IngressItem{Op: OpPlaceOrder, SeqID: seq, TSNano: order.Timestamp, Order: order}, disruptor.BackpressureSpin)
}

// SubmitCancel publishes a cancel request onto order_q.
func (r *Runner) SubmitCancel(symbolID uint32, userID, orderID uint64) {
	seq := r.seqCounter.Add(1)
	r.orderQ.Publish(IngressItem{
		Op: OpCancelOrder, SeqID: seq, TSNano: orders.Now(),
		CancelSymbol: symbolID, CancelOrderID: orderID, CancelUserID: userID,
	}, disruptor.BackpressureSpin)
}

// SubmitDeposit publishes a deposit request onto order_q.
func (r *Runner) SubmitDeposit(userID uint64, assetID uint32, amount int64) {
	seq := r.seqCounter.Add(1)
	r.orderQ.Publish(IngressItem{
		Op: OpDeposit, SeqID: seq, TSNano: orders.Now(),
		FundUserID: userID, FundAssetID: assetID, FundAmount: amount,
	}, disruptor.BackpressureSpin)
}

// SubmitWithdraw publishes a withdraw request onto order_q.
func (r *Runner) SubmitWithdraw(userID uint64, assetID uint32, amount int64) {
	seq := r.seqCounter.Add(1)
	r.orderQ.Publish(IngressItem{
		Op: OpWithdraw, SeqID: seq, TSNano: orders.Now(),
		FundUserID: userID, FundAssetID: assetID, FundAmount: amount,
	}, disruptor.BackpressureSpin)
}

// SetSeqCounter seeds the sequencer's counter after a WAL replay, so newly
// submitted requests continue the sequence instead of colliding with
// recovered ones.
func (r *Runner) SetSeqCounter(n uint64) {
	r.seqCounter.Store(n)
}

func (r *Runner) runPreTradeStage() {
	defer r.wg.Done()
	next := uint64(1)
	for {
		ok := r.orderQ.Consume(next, r.stop, func(item IngressItem) {
			r.handleIngress(item)
		})
		if !ok {
			return
		}
		next++
	}
}

func (r *Runner) handleIngress(item IngressItem) {
	switch item.Op {
	case OpCancelOrder:
		payload := EncodeCancelForWAL(item.CancelSymbol, item.CancelUserID, item.CancelOrderID)
		if err := r.walog.Append(item.SeqID, item.TSNano, wal.RecordCancel, payload); err != nil {
			corefail.Halt(r.log, "wal append failed on cancel ingestion", map[string]any{"error": err.Error(), "seq": item.SeqID})
		}

		order, err := r.eng.CancelOrder(item.CancelSymbol, item.CancelOrderID)
		if err != nil {
			r.log.Warn().Err(err).Uint64("order_id", item.CancelOrderID).Msg("cancel failed")
			return
		}
		remaining := order.RemainingQty()
		r.balanceUpdateQ.Publish(balanceUpdateItem{
			cancel: &cancelOutcome{order: order, remainingQty: remaining},
		}, disruptor.BackpressureBlock)

	case OpPlaceOrder:
		order := item.Order
		// Risk is a kind-1 input-validation screen (§7): a rejection here is
		// never written to the WAL, distinct from a PreTradeLock rejection
		// (kind-2), which is persisted because the order was already admitted
		// into the sequence.
		if res := r.risk.Check(order); !res.Passed {
			order.Status = orders.OrderStatusRejected
			r.log.Info().Uint64("order_id", order.ID).Str("reason", res.Reason).Msg("order rejected by risk check")
			return
		}

		payload := EncodeOrderForWAL(order)
		if err := r.walog.Append(item.SeqID, item.TSNano, wal.RecordOrder, payload); err != nil {
			corefail.Halt(r.log, "wal append failed on order ingestion", map[string]any{"error": err.Error(), "seq": item.SeqID})
		}

		ev, reason, ok := r.bal.PreTradeLock(order)
		if !ok {
			order.Status = orders.OrderStatusRejected
			r.log.Info().Uint64("order_id", order.ID).Str("reason", reason.String()).Msg("order rejected pre-trade")
			return
		}
		r.balanceEventQ.Publish(ev, disruptor.BackpressureBlock)
		r.validOrderQ.Publish(order, disruptor.BackpressureSpin)

	case OpDeposit:
		payload := EncodeFundingForWAL(item.FundUserID, item.FundAssetID, item.FundAmount)
		if err := r.walog.Append(item.SeqID, item.TSNano, wal.RecordDeposit, payload); err != nil {
			corefail.Halt(r.log, "wal append failed on deposit ingestion", map[string]any{"error": err.Error(), "seq": item.SeqID})
		}
		ev := r.bal.Deposit(item.SeqID, item.FundUserID, item.FundAssetID, item.FundAmount)
		r.balanceEventQ.Publish(ev, disruptor.BackpressureBlock)

	case OpWithdraw:
		// Checked up front: once the WAL record is written it must apply, so
		// a withdraw that might fail is rejected before it is ever persisted.
		// Unlike a PreTradeLock rejection, this rejection is not in the WAL.
		snap := r.bal.Snapshot(item.FundUserID, item.FundAssetID)
		if snap.Avail < item.FundAmount {
			r.log.Info().Uint64("user_id", item.FundUserID).Uint32("asset_id", item.FundAssetID).Msg("withdraw rejected: insufficient balance")
			return
		}
		payload := EncodeFundingForWAL(item.FundUserID, item.FundAssetID, item.FundAmount)
		if err := r.walog.Append(item.SeqID, item.TSNano, wal.RecordWithdraw, payload); err != nil {
			corefail.Halt(r.log, "wal append failed on withdraw ingestion", map[string]any{"error": err.Error(), "seq": item.SeqID})
		}
		ev, err := r.bal.Withdraw(item.SeqID, item.FundUserID, item.FundAssetID, item.FundAmount)
		if err != nil {
			corefail.Halt(r.log, "withdraw failed after WAL commit", map[string]any{"error": err.Error(), "seq": item.SeqID})
		}
		r.balanceEventQ.Publish(ev, disruptor.BackpressureBlock)
	}
}

func (r *Runner) runMatchingStage() {
	defer r.wg.Done()
	next := uint64(1)
	for {
		ok := r.validOrderQ.Consume(next, r.stop, func(order *orders.Order) {
			result := r.eng.ProcessOrder(order)
			makers := make(map[uint64]*orders.Order, len(result.Fills))
			for _, f := range result.Fills {
				if _, exists := makers[f.MakerOrderID]; !exists {
					if m := r.eng.GetOrder(order.SymbolID, f.MakerOrderID); m != nil {
						makers[f.MakerOrderID] = m
					} else {
						// maker fully filled and removed from book already;
						// reconstruct the minimal identity settlement needs.
						makers[f.MakerOrderID] = &orders.Order{ID: f.MakerOrderID, UserID: f.MakerUserID, SymbolID: order.SymbolID, Side: order.Side.Opposite()}
					}
				}
			}
			outcome := &matchOutcome{order: order, result: result, makers: makers}
			r.balanceUpdateQ.Publish(balanceUpdateItem{match: outcome}, disruptor.BackpressureBlock)
		})
		if !ok {
			return
		}
		next++
	}
}

func (r *Runner) runBalanceUpdateStage() {
	defer r.wg.Done()
	next := uint64(1)
	for {
		ok := r.balanceUpdateQ.Consume(next, r.stop, func(item balanceUpdateItem) {
			switch {
			case item.cancel != nil:
				ev := r.bal.CancelUnlock(item.cancel.order.SequenceNum, item.cancel.order, item.cancel.remainingQty)
				r.balanceEventQ.Publish(ev, disruptor.BackpressureBlock)

			case item.match != nil:
				outcome := item.match
				var allEvents []events.BalanceEvent
				for _, fill := range outcome.result.Fills {
					maker := outcome.makers[fill.MakerOrderID]
					evs := r.bal.SettleFill(outcome.order.SequenceNum, outcome.order.SymbolID, outcome.order, maker, fill)
					allEvents = append(allEvents, evs...)
				}
				if outcome.order.RemainingQty() > 0 && !outcome.order.IsActive() {
					// expired/cancelled remainder (IOC/FOK/market) never rested: unlock it
					ev := r.bal.CancelUnlock(outcome.order.SequenceNum, outcome.order, outcome.order.RemainingQty())
					allEvents = append(allEvents, ev)
				}
				for _, ev := range allEvents {
					r.balanceEventQ.Publish(ev, disruptor.BackpressureBlock)
				}
				r.tradeQ.Publish(settlement.TradeBatch{
					Order: outcome.order,
					Fills: outcome.result.Fills,
				}, disruptor.BackpressureBlock)
			}
		})
		if !ok {
			return
		}
		next++
	}
}

func (r *Runner) runSettlementStage() {
	defer r.wg.Done()
	var tradeNext, balNext uint64 = 1, 1
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		if r.tradeQ.Pending() > 0 {
			if !r.tradeQ.Consume(tradeNext, r.stop, func(b settlement.TradeBatch) {
				r.sett.ConsumeTrades(b)
			}) {
				return
			}
			tradeNext++
		}
		if r.balanceEventQ.Pending() > 0 {
			if !r.balanceEventQ.Consume(balNext, r.stop, func(ev events.BalanceEvent) {
				r.sett.ConsumeBalanceEvent(ev)
			}) {
				return
			}
			balNext++
		}
	}
}

func putU64(buf []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		buf[off+i] = byte(v >> (56 - 8*i))
	}
}

func getU64(buf []byte, off int) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(buf[off+i])
	}
	return v
}

func putU32(buf []byte, off int, v uint32) {
	for i := 0; i < 4; i++ {
		buf[off+i] = byte(v >> (24 - 8*i))
	}
}

func getU32(buf []byte, off int) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v = v<<8 | uint32(buf[off+i])
	}
	return v
}

// EncodeOrderForWAL and decodeOrderFromWAL are a matched pair: the fixed
// 39-byte layout (id(8) user(8) symbol(4) price(8) qty(8) side(1) type(1)
// tif(1)) is replayed verbatim, with FilledQty/Status reset to a fresh
// order's defaults since a replayed OpPlaceOrder re-runs the same
// PreTradeLock->ProcessOrder path the original submission did. Exported so
// callers that append directly to a WAL (tooling, tests driving the core
// synchronously without the ring-buffer Runner) can produce records Recover
// understands.
func EncodeOrderForWAL(o *orders.Order) []byte {
	buf := make([]byte, 39)
	putU64(buf, 0, o.ID)
	putU64(buf, 8, o.UserID)
	putU32(buf, 16, o.SymbolID)
	putU64(buf, 20, uint64(o.Price))
	putU64(buf, 28, uint64(o.Quantity))
	buf[36] = byte(o.Side)
	buf[37] = byte(o.Type)
	buf[38] = byte(o.TIF)
	return buf
}

func decodeOrderFromWAL(buf []byte) *orders.Order {
	return &orders.Order{
		ID:       getU64(buf, 0),
		UserID:   getU64(buf, 8),
		SymbolID: getU32(buf, 16),
		Price:    int64(getU64(buf, 20)),
		Quantity: int64(getU64(buf, 28)),
		Side:     orders.Side(buf[36]),
		Type:     orders.OrderType(buf[37]),
		TIF:      orders.TimeInForce(buf[38]),
		Status:   orders.OrderStatusNew,
	}
}

// EncodeCancelForWAL/decodeCancelFromWAL: symbol(4) user(8) order_id(8).
func EncodeCancelForWAL(symbolID uint32, userID, orderID uint64) []byte {
	buf := make([]byte, 20)
	putU32(buf, 0, symbolID)
	putU64(buf, 4, userID)
	putU64(buf, 12, orderID)
	return buf
}

func decodeCancelFromWAL(buf []byte) (symbolID uint32, userID, orderID uint64) {
	return getU32(buf, 0), getU64(buf, 4), getU64(buf, 12)
}

// EncodeFundingForWAL/decodeFundingForWAL: user(8) asset(4) amount(8). Shared
// by RecordDeposit and RecordWithdraw, which carry identical payload shapes.
func EncodeFundingForWAL(userID uint64, assetID uint32, amount int64) []byte {
	buf := make([]byte, 20)
	putU64(buf, 0, userID)
	putU32(buf, 8, assetID)
	putU64(buf, 12, uint64(amount))
	return buf
}

func decodeFundingForWAL(buf []byte) (userID uint64, assetID uint32, amount int64) {
	return getU64(buf, 0), getU32(buf, 8), int64(getU64(buf, 12))
}

// Recover replays a WAL into a fresh balance.Core/matching.Engine pair,
// reapplying each record through the same logic the live pipeline stages
// use, so the resulting state matches what the original run had reached
// before it stopped. It returns the highest sequence number replayed so the
// caller can seed the Runner's sequencer past it via SetSeqCounter.
func Recover(path string, bal *balance.Core, eng *matching.Engine, log zerolog.Logger) (lastSeq uint64, err error) {
	return wal.Replay(path, func(rec wal.Record) error {
		switch rec.Type {
		case wal.RecordOrder:
			order := decodeOrderFromWAL(rec.Payload)
			order.SequenceNum = rec.SeqID
			order.Timestamp = rec.TSNano

			if _, _, ok := bal.PreTradeLock(order); !ok {
				// Rejected pre-trade in the original run too: nothing else
				// was ever recorded for this sequence number.
				return nil
			}

			result := eng.ProcessOrder(order)
			for _, fill := range result.Fills {
				maker := eng.GetOrder(order.SymbolID, fill.MakerOrderID)
				if maker == nil {
					maker = &orders.Order{ID: fill.MakerOrderID, UserID: fill.MakerUserID, SymbolID: order.SymbolID, Side: order.Side.Opposite()}
				}
				bal.SettleFill(order.SequenceNum, order.SymbolID, order, maker, fill)
			}
			if order.RemainingQty() > 0 && !order.IsActive() {
				bal.CancelUnlock(order.SequenceNum, order, order.RemainingQty())
			}

		case wal.RecordCancel:
			symbolID, _, orderID := decodeCancelFromWAL(rec.Payload)
			order, cerr := eng.CancelOrder(symbolID, orderID)
			if cerr != nil {
				// Already filled/expired/gone by the time this cancel landed
				// in the original run: no unlock to replay either.
				return nil
			}
			bal.CancelUnlock(rec.SeqID, order, order.RemainingQty())

		case wal.RecordDeposit:
			userID, assetID, amount := decodeFundingForWAL(rec.Payload)
			bal.Deposit(rec.SeqID, userID, assetID, amount)

		case wal.RecordWithdraw:
			userID, assetID, amount := decodeFundingForWAL(rec.Payload)
			if _, werr := bal.Withdraw(rec.SeqID, userID, assetID, amount); werr != nil {
				corefail.Halt(log, "replay: withdraw record could not be applied against recovered state", map[string]any{
					"seq": rec.SeqID, "error": werr.Error(),
				})
			}
		}
		return nil
	})
}
