package sim

import (
	"math"
	"sort"
	"time"
)

// PositionView is a position marked against a live price for display.
// The authoritative wallet equity stays at cost basis; this view is the
// only place unrealized P&L appears.
type PositionView struct {
	Symbol    string  `json:"symbol"`
	Qty       float64 `json:"qty"`
	AvgPrice  float64 `json:"avg_price"`
	MarkPrice float64 `json:"mark_price"`
	PnL       float64 `json:"pnl"`
	PnLPct    float64 `json:"pnl_pct"`
}

// Portfolio is the read-only analytics summary of a session.
type Portfolio struct {
	Equity         float64        `json:"equity"`
	Cash           float64        `json:"cash"`
	PnL            float64        `json:"pnl"`
	PnLPct         float64        `json:"pnl_pct"`
	DailyPnL       float64        `json:"daily_pnl"`
	WinRate        float64        `json:"win_rate"`
	MaxDrawdownPct float64        `json:"max_drawdown_pct"`
	TotalTrades    int            `json:"total_trades"`
	Positions      []PositionView `json:"positions"`
}

// realizedTrade is one closing execution matched against the cost basis
// it closed during ledger replay.
type realizedTrade struct {
	TradeID string
	Symbol  string
	PnL     float64
	At      time.Time
}

// Portfolio computes the analytics summary. marks supplies live prices
// per symbol for the unrealized view; symbols without a mark fall back
// to their average cost (zero unrealized P&L).
func (e *Engine) Portfolio(marks map[string]float64) Portfolio {
	e.mu.Lock()
	wallet := copyWallet(e.wallet)
	starting := e.startingBalance
	trades := make([]Trade, len(e.trades))
	copy(trades, e.trades)
	history := make([]EquityPoint, len(e.equityHistory))
	copy(history, e.equityHistory)
	now := e.now()
	e.mu.Unlock()

	p := Portfolio{
		Equity:      wallet.Equity,
		Cash:        wallet.Cash,
		PnL:         wallet.Equity - starting,
		TotalTrades: len(trades),
	}
	if starting != 0 {
		p.PnLPct = p.PnL / starting * 100
	}

	realized := reconstructRealized(trades)
	var wins, closes int
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, r := range realized {
		closes++
		if r.PnL > 0 {
			wins++
		}
		if !r.At.Before(dayStart) {
			p.DailyPnL += r.PnL
		}
	}
	if closes > 0 {
		p.WinRate = float64(wins) / float64(closes)
	}

	p.MaxDrawdownPct = maxDrawdownPct(history)

	symbols := make([]string, 0, len(wallet.Positions))
	for sym := range wallet.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		pos := wallet.Positions[sym]
		mark, ok := marks[sym]
		if !ok || mark <= 0 {
			mark = pos.AvgPrice
		}
		view := PositionView{
			Symbol:    pos.Symbol,
			Qty:       pos.Qty,
			AvgPrice:  pos.AvgPrice,
			MarkPrice: mark,
			PnL:       (mark - pos.AvgPrice) * pos.Qty,
		}
		if basis := math.Abs(pos.Qty) * pos.AvgPrice; basis != 0 {
			view.PnLPct = view.PnL / basis * 100
		}
		p.Positions = append(p.Positions, view)
	}

	return p
}

// reconstructRealized replays the trade ledger with the same position
// rules the engine applies, matching each closing execution against the
// cost basis it closed. The wallet never records realized P&L itself,
// so win-rate analytics must rebuild it from the ledger.
//
// The fee of a closing trade counts against its outcome; fees paid on
// opening trades are treated as part of the cost of carry and are not
// attributed to any round trip.
func reconstructRealized(trades []Trade) []realizedTrade {
	type book struct {
		qty float64
		avg float64
	}
	books := make(map[string]book)
	var out []realizedTrade

	for _, t := range trades {
		d := t.Qty
		if t.Side == SideSell {
			d = -t.Qty
		}
		b := books[t.Symbol]

		if b.qty == 0 || b.qty*d > 0 {
			newQty := b.qty + d
			b.avg = math.Abs(b.qty*b.avg+d*t.Price) / math.Abs(newQty)
			b.qty = newQty
			books[t.Symbol] = b
			continue
		}

		closedQty := math.Min(math.Abs(d), math.Abs(b.qty))
		sign := 1.0
		if b.qty < 0 {
			sign = -1
		}
		pnl := (t.Price-b.avg)*closedQty*sign - t.Fee
		out = append(out, realizedTrade{TradeID: t.ID, Symbol: t.Symbol, PnL: pnl, At: t.ExecutedAt})

		newQty := b.qty + d
		switch {
		case newQty == 0:
			delete(books, t.Symbol)
		case b.qty*newQty > 0:
			b.qty = newQty
			books[t.Symbol] = b
		default:
			books[t.Symbol] = book{qty: newQty, avg: t.Price}
		}
	}
	return out
}

// maxDrawdownPct returns the largest peak-to-trough decline of the
// equity curve as a percentage of the peak.
func maxDrawdownPct(history []EquityPoint) float64 {
	var peak, maxDD float64
	for _, pt := range history {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			if dd := (peak - pt.Equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
