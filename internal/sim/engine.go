package sim

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"papertrader/internal/events"
)

// Engine owns one user's simulation state. All mutating commands are
// serialized under a single mutex so every fill is atomic: position,
// cash, equity, order status and trade append either all land or none
// do. Collaborators observe state through the event bus, never by
// holding references into the engine.
type Engine struct {
	mu     sync.Mutex
	userID string
	bus    *events.Bus
	now    func() time.Time

	wallet          Wallet
	startingBalance float64
	orders          []Order
	orderIdx        map[string]int
	trades          []Trade
	journal         []JournalEntry
	settings        RiskSettings
	equityHistory   []EquityPoint
	initialized     bool
}

// NewEngine returns an engine in the default (uninitialized) session
// state: 10000 USDT cash, default risk settings, empty ledgers.
func NewEngine(userID string, bus *events.Bus) *Engine {
	e := &Engine{
		userID: userID,
		bus:    bus,
		now:    time.Now,
	}
	e.resetLocked(DefaultBaseCurrency, DefaultStartingBalance, false)
	return e
}

// UserID returns the owning user.
func (e *Engine) UserID() string { return e.userID }

// resetLocked replaces all session state. Caller must hold e.mu (or be
// the constructor).
func (e *Engine) resetLocked(currency Currency, balance float64, initialized bool) {
	e.wallet = Wallet{
		BaseCurrency: currency,
		Cash:         balance,
		Equity:       balance,
		Positions:    make(map[string]Position),
	}
	e.startingBalance = balance
	e.orders = nil
	e.orderIdx = make(map[string]int)
	e.trades = nil
	e.journal = nil
	e.settings = DefaultRiskSettings()
	e.equityHistory = []EquityPoint{{At: e.now(), Equity: balance}}
	e.initialized = initialized
}

// Initialize starts (or restarts) a session with the given base
// currency and starting balance. Safe to call again at any time; all
// ledgers are wiped.
func (e *Engine) Initialize(currency Currency, startingBalance float64) error {
	if !currency.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	if startingBalance <= 0 {
		return fmt.Errorf("%w: starting balance must be positive", ErrInvalidSettings)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked(currency, startingBalance, true)
	e.publishSnapshotLocked()
	return nil
}

// Reset returns the session to the documented defaults (10000 USDT),
// not the last custom starting balance.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked(DefaultBaseCurrency, DefaultStartingBalance, false)
	e.publishSnapshotLocked()
}

// Initialized reports whether Initialize has been called since the
// last Reset.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// SubmitOrder validates and appends a NEW order. The wallet is not
// touched; funds move only on Fill.
func (e *Engine) SubmitOrder(spec OrderSpec) (string, error) {
	if spec.Qty <= 0 {
		return "", fmt.Errorf("%w: qty must be positive", ErrInvalidOrder)
	}
	switch spec.Side {
	case SideBuy, SideSell:
	default:
		return "", fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}
	switch spec.Type {
	case TypeMarket:
	case TypeLimit:
		if spec.Price <= 0 {
			return "", fmt.Errorf("%w: LIMIT order requires a positive price", ErrInvalidOrder)
		}
	default:
		return "", fmt.Errorf("%w: type must be MARKET or LIMIT", ErrInvalidOrder)
	}
	if spec.Symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}

	order := Order{
		ID:     uuid.NewString(),
		Symbol: spec.Symbol,
		Side:   spec.Side,
		Type:   spec.Type,
		Qty:    spec.Qty,
		Status: StatusNew,
	}
	if spec.Type == TypeLimit {
		order.Price = spec.Price
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	order.PlacedAt = e.now()
	e.orderIdx[order.ID] = len(e.orders)
	e.orders = append(e.orders, order)
	e.publish(events.EventOrderSubmitted, order)
	e.publishSnapshotLocked()
	return order.ID, nil
}

// Fill executes a NEW order against the supplied market price. The
// NEW -> FILLED transition is a check-and-set under the engine lock, so
// a terminal order can never fill twice.
func (e *Engine) Fill(orderID string, marketPrice float64) error {
	if marketPrice <= 0 {
		return fmt.Errorf("%w: market price must be positive", ErrInvalidOrder)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.orderIdx[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	order := e.orders[idx]
	if order.Status != StatusNew {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, orderID, order.Status)
	}

	settings := e.settings

	// MARKET orders pay slippage in the adverse direction; LIMIT
	// orders fill at their own price with no slippage.
	var fillPrice float64
	switch order.Type {
	case TypeMarket:
		if order.Side == SideBuy {
			fillPrice = marketPrice * (1 + settings.SlippagePct/100)
		} else {
			fillPrice = marketPrice * (1 - settings.SlippagePct/100)
		}
	default:
		fillPrice = order.Price
	}

	notional := fillPrice * order.Qty
	fee := notional * (settings.FeePct / 100)

	applyFill(e.wallet.Positions, order.Symbol, order.Side, order.Qty, fillPrice)

	if order.Side == SideBuy {
		e.wallet.Cash -= notional + fee
	} else {
		e.wallet.Cash += notional - fee
	}
	e.wallet.Equity = e.wallet.Cash + costBasis(e.wallet.Positions)

	executedAt := e.now()
	order.Status = StatusFilled
	order.FilledAt = &executedAt
	order.FilledPrice = fillPrice
	order.FilledQty = order.Qty
	e.orders[idx] = order

	trade := Trade{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Price:       fillPrice,
		Qty:         order.Qty,
		Fee:         fee,
		SlippagePct: settings.SlippagePct,
		ExecutedAt:  executedAt,
	}
	e.trades = append(e.trades, trade)

	e.equityHistory = append(e.equityHistory, EquityPoint{At: executedAt, Equity: e.wallet.Equity})

	e.publish(events.EventOrderFilled, trade)
	e.publishSnapshotLocked()
	return nil
}

// CancelOrder moves a NEW order to CANCELED. Terminal orders are left
// untouched and reported as such.
func (e *Engine) CancelOrder(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.orderIdx[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if e.orders[idx].Status != StatusNew {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, orderID, e.orders[idx].Status)
	}
	e.orders[idx].Status = StatusCanceled
	e.publish(events.EventOrderCanceled, e.orders[idx])
	e.publishSnapshotLocked()
	return nil
}

// SetRiskSettings replaces the settings used by subsequent fills.
// Fills already executed keep the fees and slippage they were charged.
func (e *Engine) SetRiskSettings(settings RiskSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = settings
	e.publishSnapshotLocked()
	return nil
}

// AddJournalEntry appends a trading note.
func (e *Engine) AddJournalEntry(tradeID, why, plan, lesson string) (JournalEntry, error) {
	if why == "" && plan == "" && lesson == "" {
		return JournalEntry{}, fmt.Errorf("%w: journal entry is empty", ErrInvalidOrder)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	entry := JournalEntry{
		ID:        uuid.NewString(),
		TradeID:   tradeID,
		Why:       why,
		Plan:      plan,
		Lesson:    lesson,
		CreatedAt: e.now(),
	}
	e.journal = append(e.journal, entry)
	e.publishSnapshotLocked()
	return entry, nil
}

// applyFill updates the per-symbol position for one execution.
//
// Classification, given the existing signed qty and the signed delta d
// (+qty for BUY, -qty for SELL):
//   - no position: open at the fill price (short if SELL; there is no
//     margin check)
//   - newQty == 0: remove the position entirely
//   - same side add: blended average cost
//   - partial close: size shrinks, average cost unchanged
//   - flip: the residual opens at the fill price; the closed leg's
//     gain or loss stays absorbed in cash (no realized P&L event)
func applyFill(positions map[string]Position, symbol string, side Side, qty, fillPrice float64) {
	d := qty
	if side == SideSell {
		d = -qty
	}

	pos, ok := positions[symbol]
	if !ok {
		positions[symbol] = Position{Symbol: symbol, Qty: d, AvgPrice: fillPrice}
		return
	}

	newQty := pos.Qty + d
	switch {
	case newQty == 0:
		delete(positions, symbol)
	case pos.Qty*d > 0:
		pos.AvgPrice = math.Abs(pos.Qty*pos.AvgPrice+d*fillPrice) / math.Abs(newQty)
		pos.Qty = newQty
		positions[symbol] = pos
	case pos.Qty*newQty > 0:
		pos.Qty = newQty
		positions[symbol] = pos
	default:
		positions[symbol] = Position{Symbol: symbol, Qty: newQty, AvgPrice: fillPrice}
	}
}

// costBasis sums qty*avgPrice over open positions. Equity is marked at
// average cost, not at the live market.
func costBasis(positions map[string]Position) float64 {
	var sum float64
	for _, p := range positions {
		sum += p.Qty * p.AvgPrice
	}
	return sum
}

func (e *Engine) publish(ev events.Event, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ev, payload)
}

func (e *Engine) publishSnapshotLocked() {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.EventSnapshot, SnapshotEvent{UserID: e.userID, Snapshot: e.snapshotLocked()})
}

// --- queries ---

// Wallet returns a copy of the wallet, positions included.
func (e *Engine) Wallet() Wallet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyWallet(e.wallet)
}

// Position returns the open position for symbol, if any.
func (e *Engine) Position(symbol string) (Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.wallet.Positions[symbol]
	return p, ok
}

// Orders returns the order ledger, newest last, optionally filtered by
// status. An empty filter returns everything.
func (e *Engine) Orders(status OrderStatus) []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, 0, len(e.orders))
	for _, o := range e.orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// Order returns a single order by id.
func (e *Engine) Order(orderID string) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.orderIdx[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	return e.orders[idx], nil
}

// Trades returns the trade ledger in execution order.
func (e *Engine) Trades() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// Journal returns all journal entries in creation order.
func (e *Engine) Journal() []JournalEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]JournalEntry, len(e.journal))
	copy(out, e.journal)
	return out
}

// RiskSettings returns the settings the next fill will use.
func (e *Engine) RiskSettings() RiskSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// StartingBalance returns the balance the current session opened with.
func (e *Engine) StartingBalance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startingBalance
}

// EquityHistory returns the ordered equity curve: one sample at session
// start plus one per fill.
func (e *Engine) EquityHistory() []EquityPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EquityPoint, len(e.equityHistory))
	copy(out, e.equityHistory)
	return out
}

func copyWallet(w Wallet) Wallet {
	out := w
	out.Positions = make(map[string]Position, len(w.Positions))
	for k, v := range w.Positions {
		out.Positions[k] = v
	}
	return out
}
