package sim

import (
	"fmt"
	"time"
)

// SnapshotSchemaVersion is bumped whenever the persisted layout changes
// incompatibly. A stored snapshot with a different version is discarded
// and the session starts fresh.
const SnapshotSchemaVersion = 1

// Snapshot is the full persisted session state. It is also the
// export/import wire format.
type Snapshot struct {
	SchemaVersion   int            `json:"schema_version"`
	BaseCurrency    Currency       `json:"base_currency"`
	StartingBalance float64        `json:"starting_balance"`
	Wallet          Wallet         `json:"wallet"`
	Orders          []Order        `json:"orders"`
	Trades          []Trade        `json:"trades"`
	Journal         []JournalEntry `json:"journal"`
	RiskSettings    RiskSettings   `json:"risk_settings"`
	EquityHistory   []EquityPoint  `json:"equity_history"`
	IsInitialized   bool           `json:"is_initialized"`
}

// SnapshotEvent is published on events.EventSnapshot after every
// mutation; the persistence layer is its only intended consumer.
type SnapshotEvent struct {
	UserID   string
	Snapshot Snapshot
}

// Export wraps a snapshot for download.
type Export struct {
	Snapshot
	ExportedAt time.Time `json:"exported_at"`
}

// Validate checks an imported snapshot before it replaces live state.
// Imports are all-or-nothing: any violation rejects the whole record.
func (s Snapshot) Validate() error {
	if s.SchemaVersion != SnapshotSchemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", s.SchemaVersion, SnapshotSchemaVersion)
	}
	if !s.BaseCurrency.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, s.BaseCurrency)
	}
	if s.StartingBalance <= 0 {
		return fmt.Errorf("starting balance must be positive, got %v", s.StartingBalance)
	}
	if err := s.RiskSettings.Validate(); err != nil {
		return err
	}
	for sym, p := range s.Wallet.Positions {
		if p.Qty == 0 {
			return fmt.Errorf("zero-qty position for %s", sym)
		}
		if p.AvgPrice < 0 {
			return fmt.Errorf("negative avg price for %s", sym)
		}
	}
	seen := make(map[string]bool, len(s.Orders))
	for _, o := range s.Orders {
		if o.ID == "" || seen[o.ID] {
			return fmt.Errorf("duplicate or missing order id %q", o.ID)
		}
		seen[o.ID] = true
		if o.Qty <= 0 {
			return fmt.Errorf("order %s has non-positive qty", o.ID)
		}
		switch o.Status {
		case StatusNew, StatusFilled, StatusCanceled, StatusRejected:
		default:
			return fmt.Errorf("order %s has unknown status %q", o.ID, o.Status)
		}
		if o.Status == StatusFilled && (o.FilledQty <= 0 || o.FilledPrice <= 0 || o.FilledAt == nil) {
			return fmt.Errorf("order %s is FILLED without fill details", o.ID)
		}
	}
	for _, t := range s.Trades {
		if t.Qty <= 0 || t.Price <= 0 {
			return fmt.Errorf("trade %s has invalid price/qty", t.ID)
		}
		if !seen[t.OrderID] {
			return fmt.Errorf("trade %s references unknown order %s", t.ID, t.OrderID)
		}
	}
	for i := 1; i < len(s.EquityHistory); i++ {
		if s.EquityHistory[i].At.Before(s.EquityHistory[i-1].At) {
			return fmt.Errorf("equity history out of order at index %d", i)
		}
	}
	return nil
}

// Snapshot returns a deep copy of the full session state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		SchemaVersion:   SnapshotSchemaVersion,
		BaseCurrency:    e.wallet.BaseCurrency,
		StartingBalance: e.startingBalance,
		Wallet:          copyWallet(e.wallet),
		Orders:          make([]Order, len(e.orders)),
		Trades:          make([]Trade, len(e.trades)),
		Journal:         make([]JournalEntry, len(e.journal)),
		RiskSettings:    e.settings,
		EquityHistory:   make([]EquityPoint, len(e.equityHistory)),
		IsInitialized:   e.initialized,
	}
	copy(snap.Orders, e.orders)
	copy(snap.Trades, e.trades)
	copy(snap.Journal, e.journal)
	copy(snap.EquityHistory, e.equityHistory)
	return snap
}

// ExportSnapshot returns the session state stamped for download.
func (e *Engine) ExportSnapshot() Export {
	return Export{Snapshot: e.Snapshot(), ExportedAt: time.Now().UTC()}
}

// Restore replaces the session state with a validated snapshot. Used
// both for startup rehydration and for user-driven import.
func (e *Engine) Restore(snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.wallet = copyWallet(snap.Wallet)
	if e.wallet.Positions == nil {
		e.wallet.Positions = make(map[string]Position)
	}
	e.startingBalance = snap.StartingBalance
	e.orders = make([]Order, len(snap.Orders))
	copy(e.orders, snap.Orders)
	e.orderIdx = make(map[string]int, len(e.orders))
	for i, o := range e.orders {
		e.orderIdx[o.ID] = i
	}
	e.trades = make([]Trade, len(snap.Trades))
	copy(e.trades, snap.Trades)
	e.journal = make([]JournalEntry, len(snap.Journal))
	copy(e.journal, snap.Journal)
	e.settings = snap.RiskSettings
	e.equityHistory = make([]EquityPoint, len(snap.EquityHistory))
	copy(e.equityHistory, snap.EquityHistory)
	if len(e.equityHistory) == 0 {
		e.equityHistory = []EquityPoint{{At: e.now(), Equity: e.wallet.Equity}}
	}
	e.initialized = snap.IsInitialized

	e.publishSnapshotLocked()
	return nil
}
