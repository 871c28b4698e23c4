// Package sim implements the paper-trading execution engine: virtual
// wallet, order lifecycle, fill simulation with fee/slippage, and the
// derived portfolio analytics.
package sim

import (
	"errors"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType selects the fill-price rule.
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// OrderStatus is the lifecycle state of an order. NEW is the only
// non-terminal state.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status can never change again.
func (s OrderStatus) IsTerminal() bool {
	return s != StatusNew
}

// Currency is the wallet base currency.
type Currency string

const (
	CurrencyUSDT Currency = "USDT"
	CurrencyUSD  Currency = "USD"
	CurrencyINR  Currency = "INR"
)

// Valid reports whether c is one of the supported base currencies.
func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSDT, CurrencyUSD, CurrencyINR:
		return true
	}
	return false
}

// Session defaults.
const (
	DefaultBaseCurrency    = CurrencyUSDT
	DefaultStartingBalance = 10000.0
)

// Engine error sentinels. All engine errors are local and synchronous;
// the caller decides whether to resubmit.
var (
	ErrInvalidOrder    = errors.New("invalid order")
	ErrUnknownOrder    = errors.New("unknown order")
	ErrAlreadyTerminal = errors.New("order already terminal")
	ErrInvalidCurrency = errors.New("unsupported base currency")
	ErrInvalidSettings = errors.New("invalid risk settings")
)

// Wallet holds cash and open positions in a single base currency.
// Equity is always recomputed as cash plus the cost basis of open
// positions; it is never assigned independently.
type Wallet struct {
	BaseCurrency Currency            `json:"base_currency"`
	Cash         float64             `json:"cash"`
	Equity       float64             `json:"equity"`
	Positions    map[string]Position `json:"positions"`
}

// Position is the net exposure in one symbol. Qty is signed; negative
// means short. A position is removed the instant Qty reaches zero.
type Position struct {
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
}

// Order is an append-only ledger entry. Orders are never deleted;
// terminal orders keep their fill details forever.
type Order struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Type        OrderType   `json:"type"`
	Qty         float64     `json:"qty"`
	Price       float64     `json:"price,omitempty"`
	Status      OrderStatus `json:"status"`
	PlacedAt    time.Time   `json:"placed_at"`
	FilledAt    *time.Time  `json:"filled_at,omitempty"`
	FilledPrice float64     `json:"filled_price,omitempty"`
	FilledQty   float64     `json:"filled_qty,omitempty"`
}

// OrderSpec is the caller-supplied part of an order.
type OrderSpec struct {
	Symbol string
	Side   Side
	Type   OrderType
	Qty    float64
	Price  float64 // required for LIMIT, ignored for MARKET
}

// Trade is the immutable record of one execution. SlippagePct records
// the configured slippage at fill time, matching the upstream ledger
// even for LIMIT fills where none is applied.
type Trade struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Price       float64   `json:"price"`
	Qty         float64   `json:"qty"`
	Fee         float64   `json:"fee"`
	SlippagePct float64   `json:"slippage_pct"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// JournalEntry is a free-text trading note, optionally linked to a trade.
type JournalEntry struct {
	ID        string    `json:"id"`
	TradeID   string    `json:"trade_id,omitempty"`
	Why       string    `json:"why"`
	Plan      string    `json:"plan"`
	Lesson    string    `json:"lesson"`
	CreatedAt time.Time `json:"created_at"`
}

// RiskSettings are read once per fill; mid-session updates only affect
// subsequent fills.
type RiskSettings struct {
	MaxPositionSizePct float64 `json:"max_position_size_pct" yaml:"max_position_size_pct"`
	StopLossPct        float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct      float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	FeePct             float64 `json:"fee_pct" yaml:"fee_pct"`
	SlippagePct        float64 `json:"slippage_pct" yaml:"slippage_pct"`
}

// DefaultRiskSettings returns the documented session defaults.
func DefaultRiskSettings() RiskSettings {
	return RiskSettings{
		MaxPositionSizePct: 25,
		StopLossPct:        5,
		TakeProfitPct:      15,
		MaxDailyLossPct:    10,
		FeePct:             0.1,
		SlippagePct:        0.1,
	}
}

// Validate rejects settings that would make fills nonsensical.
func (r RiskSettings) Validate() error {
	if r.FeePct < 0 || r.SlippagePct < 0 {
		return ErrInvalidSettings
	}
	if r.MaxPositionSizePct < 0 || r.StopLossPct < 0 || r.TakeProfitPct < 0 || r.MaxDailyLossPct < 0 {
		return ErrInvalidSettings
	}
	return nil
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	At     time.Time `json:"at"`
	Equity float64   `json:"equity"`
}
