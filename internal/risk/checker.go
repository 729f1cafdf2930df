// Package risk implements pre-trade notional sanity checks that sit in
// front of UBSCore: order size, order notional, and a price band around the
// last traded price. These are deliberately simple bounds checks, not a
// margin/position-limit system (margin/futures is out of scope) — the
// teacher's Checker (account position limits, daily volume caps) is
// repurposed here for the quantities a spot exchange actually needs:
// catching fat-finger orders before they reach the book, not tracking
// leveraged exposure.
package risk

import (
	"fmt"
	"math"
	"sync"

	"github.com/rishav/exchange-core/internal/orders"
)

// CheckResult contains the result of a risk check.
type CheckResult struct {
	Passed    bool
	Reason    string
	ChecksRun []string
}

// Config configures the risk checker.
type Config struct {
	MaxOrderSize     int64             // maximum quantity per order
	MaxOrderNotional int64             // maximum price*quantity per order
	PriceBandPercent float64           // max deviation from reference price (0.1 = 10%)
	SymbolMaxSize    map[uint32]int64 // per-symbol override of MaxOrderSize
}

// DefaultConfig returns reasonable defaults. MaxOrderNotional is left at the
// int64 ceiling: this check is a fat-finger screen on the raw price*quantity
// product, computed without the qty_unit scaling UBSCore applies, so a low
// default here would reject legitimately-sized orders on high-precision
// instruments before they ever reach UBSCore's authoritative overflow check
// (internal/balance's scaledNotional). Deployments with a flat price/qty
// scale for every symbol can tighten this.
func DefaultConfig() Config {
	return Config{
		MaxOrderSize:     1_000_000_000,
		MaxOrderNotional: math.MaxInt64,
		PriceBandPercent: 0.20,
	}
}

// Checker performs pre-trade sanity checks.
type Checker struct {
	config          Config
	referencePrices map[uint32]int64
	mu              sync.RWMutex
}

// NewChecker creates a new risk checker.
func NewChecker(config Config) *Checker {
	return &Checker{
		config:          config,
		referencePrices: make(map[uint32]int64),
	}
}

// Check performs all risk checks on an order. Returns immediately on the
// first failure.
func (c *Checker) Check(order *orders.Order) CheckResult {
	result := CheckResult{Passed: true, ChecksRun: make([]string, 0, 3)}

	result.ChecksRun = append(result.ChecksRun, "order_size")
	maxSize := c.config.MaxOrderSize
	if c.config.SymbolMaxSize != nil {
		if v, ok := c.config.SymbolMaxSize[order.SymbolID]; ok {
			maxSize = v
		}
	}
	if order.Quantity > maxSize {
		return CheckResult{Passed: false, ChecksRun: result.ChecksRun,
			Reason: fmt.Sprintf("order size %d exceeds max %d", order.Quantity, maxSize)}
	}

	if order.Price > 0 {
		result.ChecksRun = append(result.ChecksRun, "order_notional")
		notional := order.Price * order.Quantity
		if notional > c.config.MaxOrderNotional {
			return CheckResult{Passed: false, ChecksRun: result.ChecksRun,
				Reason: fmt.Sprintf("order notional %d exceeds max %d", notional, c.config.MaxOrderNotional)}
		}
	}

	if order.Type == orders.OrderTypeLimit && order.Price > 0 {
		result.ChecksRun = append(result.ChecksRun, "price_band")
		if !c.checkPriceBand(order) {
			ref := c.GetReferencePrice(order.SymbolID)
			return CheckResult{Passed: false, ChecksRun: result.ChecksRun,
				Reason: fmt.Sprintf("price %d outside band (ref: %d, band: %.0f%%)", order.Price, ref, c.config.PriceBandPercent*100)}
		}
	}

	return result
}

func (c *Checker) checkPriceBand(order *orders.Order) bool {
	c.mu.RLock()
	ref, exists := c.referencePrices[order.SymbolID]
	c.mu.RUnlock()

	if !exists || ref == 0 {
		return true
	}

	band := int64(float64(ref) * c.config.PriceBandPercent)
	return order.Price >= ref-band && order.Price <= ref+band
}

// SetReferencePrice records the last traded price for a symbol.
func (c *Checker) SetReferencePrice(symbolID uint32, price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.referencePrices[symbolID] = price
}

// GetReferencePrice returns the current reference price for a symbol.
func (c *Checker) GetReferencePrice(symbolID uint32) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.referencePrices[symbolID]
}
