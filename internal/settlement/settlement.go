// Package settlement implements the Settlement consumer: the single
// goroutine that drains trade_q and balance_event_q to durable sinks.
//
// This replaces the teacher's T+2 netting ClearingHouse (RecordTrade ->
// CalculateNetting -> GenerateSettlementInstructions -> Settle, with trades
// held PENDING until a settle date). This core settles atomically at match
// time inside UBSCore; what's left for Settlement is the same idiom the
// teacher used — a mutex-guarded append-only ledger plus a pub/sub fan-out —
// repointed at an audit trail instead of a multi-day netting cycle.
package settlement

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rishav/exchange-core/internal/corefail"
	"github.com/rishav/exchange-core/internal/events"
	"github.com/rishav/exchange-core/internal/marketdata"
	"github.com/rishav/exchange-core/internal/orders"
)

// TradeBatch is what the pipeline's balance-update stage hands to Settlement,
// after settling the fills, for one processed order: the order itself (for status/audit) and every fill
// it produced.
type TradeBatch struct {
	Order *orders.Order
	Fills []orders.Fill
}

// Consumer drains trade_q and balance_event_q to a CSV ledger (a
// human-readable audit trail alongside the binary WAL) and fans trades out
// to the market-data publisher.
type Consumer struct {
	mu        sync.Mutex
	tradeCSV  *csv.Writer
	tradeFile *os.File
	balCSV    *csv.Writer
	balFile   *os.File
	pub       *marketdata.Publisher
	log       zerolog.Logger
}

// Config configures the ledger file paths.
type Config struct {
	TradeLedgerPath   string
	BalanceLedgerPath string
}

// New opens (creating if necessary) the CSV ledgers and wires a
// market-data publisher for trade fan-out.
func New(cfg Config, pub *marketdata.Publisher, log zerolog.Logger) (*Consumer, error) {
	tf, err := os.OpenFile(cfg.TradeLedgerPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("settlement: open trade ledger: %w", err)
	}
	bf, err := os.OpenFile(cfg.BalanceLedgerPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		tf.Close()
		return nil, fmt.Errorf("settlement: open balance ledger: %w", err)
	}
	return &Consumer{
		tradeCSV:  csv.NewWriter(tf),
		tradeFile: tf,
		balCSV:    csv.NewWriter(bf),
		balFile:   bf,
		pub:       pub,
		log:       log,
	}, nil
}

// ConsumeTrades appends every fill in the batch to the trade ledger and
// publishes a TradeReport per fill. A ledger write failure halts the
// process (§7 kind 5: I/O exhaustion on the durability path) rather than
// silently skipping the record.
func (c *Consumer) ConsumeTrades(b TradeBatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range b.Fills {
		row := []string{
			strconv.FormatUint(f.TradeID, 10),
			strconv.FormatUint(uint64(f.SymbolID), 10),
			strconv.FormatInt(f.Price, 10),
			strconv.FormatInt(f.Quantity, 10),
			strconv.FormatUint(f.MakerOrderID, 10),
			strconv.FormatUint(f.TakerOrderID, 10),
			strconv.FormatUint(f.MakerUserID, 10),
			strconv.FormatUint(f.TakerUserID, 10),
			f.TakerSide.String(),
			strconv.FormatInt(f.Timestamp, 10),
		}
		if err := c.tradeCSV.Write(row); err != nil {
			corefail.Halt(c.log, "trade ledger write failed", map[string]any{"error": err.Error(), "trade_id": f.TradeID})
		}

		c.pub.PublishTrade(marketdata.TradeReport{
			TradeID:       f.TradeID,
			SymbolID:      f.SymbolID,
			Price:         f.Price,
			Quantity:      f.Quantity,
			AggressorSide: f.TakerSide,
			Timestamp:     f.Timestamp,
		})
	}
	c.tradeCSV.Flush()
	if err := c.tradeCSV.Error(); err != nil {
		corefail.Halt(c.log, "trade ledger flush failed", map[string]any{"error": err.Error()})
	}
}

// ConsumeBalanceEvent appends one balance mutation to the balance audit
// ledger.
func (c *Consumer) ConsumeBalanceEvent(ev events.BalanceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := []string{
		strconv.FormatUint(ev.SequenceNum, 10),
		strconv.FormatUint(ev.UserID, 10),
		strconv.FormatUint(uint64(ev.AssetID), 10),
		ev.Kind.String(),
		strconv.FormatInt(ev.Amount, 10),
		strconv.FormatUint(ev.LockVersion, 10),
		strconv.FormatUint(ev.SettleVersion, 10),
		strconv.FormatInt(ev.AvailAfter, 10),
		strconv.FormatInt(ev.FrozenAfter, 10),
	}
	if err := c.balCSV.Write(row); err != nil {
		corefail.Halt(c.log, "balance ledger write failed", map[string]any{"error": err.Error(), "seq": ev.SequenceNum})
	}
	c.balCSV.Flush()
	if err := c.balCSV.Error(); err != nil {
		corefail.Halt(c.log, "balance ledger flush failed", map[string]any{"error": err.Error()})
	}
}

// Close flushes and closes both ledger files.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tradeCSV.Flush()
	c.balCSV.Flush()
	if err := c.tradeFile.Close(); err != nil {
		return err
	}
	return c.balFile.Close()
}
