// Package config loads the static asset/symbol registry and runtime tunables
// (queue capacities, WAL flush policy, market-buy toggle) via viper, the
// same configuration library used elsewhere in the source corpus for
// layered file/env config.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Asset describes a currency/token tradable as a base or quote leg.
type Asset struct {
	ID              uint32 `mapstructure:"id"`
	Symbol          string `mapstructure:"symbol"`
	Decimals        uint8  `mapstructure:"decimals"`
	DisplayDecimals uint8  `mapstructure:"display_decimals"`
}

// Symbol describes a tradable base/quote pair.
type Symbol struct {
	ID            uint32 `mapstructure:"id"`
	Name          string `mapstructure:"name"`
	BaseAssetID   uint32 `mapstructure:"base_asset_id"`
	QuoteAssetID  uint32 `mapstructure:"quote_asset_id"`
	PriceDecimals uint8  `mapstructure:"price_decimals"`
	QtyDecimals   uint8  `mapstructure:"qty_decimals"`
}

// QtyUnit is the scale factor that converts an integer price*quantity
// product into real quote-asset minor units: 10^QtyDecimals. Every notional
// computation (lock sizing, fill settlement, cancel unlock) divides by this
// before touching a balance.
func (s Symbol) QtyUnit() uint64 {
	return pow10(s.QtyDecimals)
}

func pow10(n uint8) uint64 {
	v := uint64(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}

// QueueCapacities holds the capacity of each named ring buffer (§5).
type QueueCapacities struct {
	OrderQ           int `mapstructure:"order_capacity"`
	ValidOrderQ      int `mapstructure:"valid_capacity"`
	TradeQ           int `mapstructure:"trade_capacity"`
	BalanceUpdateQ   int `mapstructure:"balance_update_capacity"`
	BalanceEventQ    int `mapstructure:"balance_event_capacity"`
}

// WAL holds durability tunables.
type WAL struct {
	Path                  string `mapstructure:"path"`
	FlushIntervalEntries  int    `mapstructure:"flush_interval_entries"`
	SyncOnFlush           bool   `mapstructure:"sync_on_flush"`
}

// Matching holds matching-engine tunables.
type Matching struct {
	AllowMarketBuy bool `mapstructure:"allow_market_buy"`
}

// Registry is the fully-loaded, read-only configuration for a running core.
// It is built once at startup and passed by pointer to every component;
// nothing mutates it afterward.
type Registry struct {
	Assets   []Asset           `mapstructure:"assets"`
	Symbols  []Symbol          `mapstructure:"symbols"`
	Queue    QueueCapacities    `mapstructure:"queue"`
	WAL      WAL               `mapstructure:"wal"`
	Matching Matching          `mapstructure:"me"`

	assetsByID  map[uint32]Asset
	symbolsByID map[uint32]Symbol
}

// DefaultRegistry returns hard-coded sane defaults, used when no config file
// is present (e.g. in tests).
func DefaultRegistry() *Registry {
	r := &Registry{
		Assets: []Asset{
			{ID: 1, Symbol: "USDT", Decimals: 6, DisplayDecimals: 2},
			{ID: 2, Symbol: "BTC", Decimals: 8, DisplayDecimals: 8},
		},
		Symbols: []Symbol{
			{ID: 1, Name: "BTC-USDT", BaseAssetID: 2, QuoteAssetID: 1, PriceDecimals: 2, QtyDecimals: 8},
		},
		Queue: QueueCapacities{
			OrderQ:         4096,
			ValidOrderQ:    4096,
			TradeQ:         16384,
			BalanceUpdateQ: 16384,
			BalanceEventQ:  16384,
		},
		WAL: WAL{
			Path:                 "wal.log",
			FlushIntervalEntries: 100,
			SyncOnFlush:          true,
		},
		Matching: Matching{AllowMarketBuy: false},
	}
	r.index()
	return r
}

// Load reads configuration from the given file path (YAML/JSON/TOML, per
// viper's auto-detection) layered over environment variables prefixed
// EXCHANGE_, falling back to DefaultRegistry values for anything unset.
func Load(path string) (*Registry, error) {
	v := viper.New()
	v.SetEnvPrefix("exchange")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultRegistry()
	v.SetDefault("assets", def.Assets)
	v.SetDefault("symbols", def.Symbols)
	v.SetDefault("queue", def.Queue)
	v.SetDefault("wal", def.WAL)
	v.SetDefault("me", def.Matching)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	r := &Registry{}
	if err := v.Unmarshal(r); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	r.index()
	return r, nil
}

func (r *Registry) index() {
	r.assetsByID = make(map[uint32]Asset, len(r.Assets))
	for _, a := range r.Assets {
		r.assetsByID[a.ID] = a
	}
	r.symbolsByID = make(map[uint32]Symbol, len(r.Symbols))
	for _, s := range r.Symbols {
		r.symbolsByID[s.ID] = s
	}
}

// Asset looks up an asset by ID.
func (r *Registry) Asset(id uint32) (Asset, bool) {
	a, ok := r.assetsByID[id]
	return a, ok
}

// Symbol looks up a symbol by ID.
func (r *Registry) Symbol(id uint32) (Symbol, bool) {
	s, ok := r.symbolsByID[id]
	return s, ok
}
