package sim

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine("user-1", nil)
	if err := e.Initialize(CurrencyUSDT, 10000); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return e
}

func setFrictionless(t *testing.T, e *Engine) {
	t.Helper()
	s := e.RiskSettings()
	s.FeePct = 0
	s.SlippagePct = 0
	if err := e.SetRiskSettings(s); err != nil {
		t.Fatalf("SetRiskSettings: %v", err)
	}
}

func mustFillLimit(t *testing.T, e *Engine, symbol string, side Side, qty, price float64) {
	t.Helper()
	id, err := e.SubmitOrder(OrderSpec{Symbol: symbol, Side: side, Type: TypeLimit, Qty: qty, Price: price})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if err := e.Fill(id, price); err != nil {
		t.Fatalf("Fill: %v", err)
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSubmitOrderValidation(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		spec OrderSpec
	}{
		{"zero qty", OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeMarket, Qty: 0}},
		{"negative qty", OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeMarket, Qty: -1}},
		{"limit without price", OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeLimit, Qty: 1}},
		{"limit negative price", OrderSpec{Symbol: "BTCUSDT", Side: SideSell, Type: TypeLimit, Qty: 1, Price: -5}},
		{"bad side", OrderSpec{Symbol: "BTCUSDT", Side: "HOLD", Type: TypeMarket, Qty: 1}},
		{"bad type", OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: "STOP", Qty: 1}},
		{"missing symbol", OrderSpec{Side: SideBuy, Type: TypeMarket, Qty: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.SubmitOrder(tt.spec); !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("want ErrInvalidOrder, got %v", err)
			}
		})
	}

	if len(e.Orders("")) != 0 {
		t.Fatalf("rejected submissions must not append orders")
	}
	w := e.Wallet()
	if !approx(w.Cash, 10000) || !approx(w.Equity, 10000) {
		t.Fatalf("rejected submissions must not touch the wallet: %+v", w)
	}
}

func TestSubmitDoesNotMoveFunds(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.SubmitOrder(OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeMarket, Qty: 0.5})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	order, err := e.Order(id)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if order.Status != StatusNew {
		t.Fatalf("want NEW, got %s", order.Status)
	}
	w := e.Wallet()
	if !approx(w.Cash, 10000) || len(w.Positions) != 0 {
		t.Fatalf("submit must not touch the wallet: %+v", w)
	}
}

// Initialize 10000 USDT, MARKET BUY 0.1 BTCUSDT at market 45000 with
// 0.1% slippage and 0.1% fee.
func TestMarketBuyScenario(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.SubmitOrder(OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeMarket, Qty: 0.1})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if err := e.Fill(id, 45000); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	order, _ := e.Order(id)
	if order.Status != StatusFilled {
		t.Fatalf("want FILLED, got %s", order.Status)
	}
	if !approx(order.FilledPrice, 45045) {
		t.Fatalf("fill price: want 45045, got %v", order.FilledPrice)
	}
	if !approx(order.FilledQty, 0.1) {
		t.Fatalf("filled qty: want 0.1, got %v", order.FilledQty)
	}
	if order.FilledAt == nil {
		t.Fatal("FilledAt not set")
	}

	w := e.Wallet()
	if !approx(w.Cash, 5490.9955) {
		t.Fatalf("cash: want 5490.9955, got %v", w.Cash)
	}
	pos, ok := e.Position("BTCUSDT")
	if !ok {
		t.Fatal("position not opened")
	}
	if !approx(pos.Qty, 0.1) || !approx(pos.AvgPrice, 45045) {
		t.Fatalf("position: want 0.1@45045, got %v@%v", pos.Qty, pos.AvgPrice)
	}
	if !approx(w.Equity, w.Cash+0.1*45045) {
		t.Fatalf("equity: want %v, got %v", w.Cash+0.1*45045, w.Equity)
	}

	trades := e.Trades()
	if len(trades) != 1 {
		t.Fatalf("want exactly one trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.OrderID != id || tr.Side != SideBuy || !approx(tr.Price, 45045) {
		t.Fatalf("trade mismatch: %+v", tr)
	}
	if !approx(tr.Fee, 4.5045) {
		t.Fatalf("fee: want 4.5045, got %v", tr.Fee)
	}
	if !approx(tr.SlippagePct, 0.1) {
		t.Fatalf("slippage pct recorded: want 0.1, got %v", tr.SlippagePct)
	}
}

func TestMarketSellSlippageDirection(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.SubmitOrder(OrderSpec{Symbol: "ETHUSDT", Side: SideSell, Type: TypeMarket, Qty: 1})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if err := e.Fill(id, 2000); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	order, _ := e.Order(id)
	// SELL pays slippage downward: 2000 * (1 - 0.001)
	if !approx(order.FilledPrice, 1998) {
		t.Fatalf("fill price: want 1998, got %v", order.FilledPrice)
	}
}

func TestLimitFillIgnoresSlippage(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.SubmitOrder(OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeLimit, Qty: 1, Price: 40000})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if err := e.Fill(id, 45000); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	order, _ := e.Order(id)
	if !approx(order.FilledPrice, 40000) {
		t.Fatalf("LIMIT must fill at its own price: want 40000, got %v", order.FilledPrice)
	}
}

func TestFillIdempotentTerminalTransition(t *testing.T) {
	e := newTestEngine(t)
	setFrictionless(t, e)

	id, _ := e.SubmitOrder(OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeLimit, Qty: 1, Price: 100})
	if err := e.Fill(id, 100); err != nil {
		t.Fatalf("first fill: %v", err)
	}

	before := e.Wallet()
	tradesBefore := len(e.Trades())

	if err := e.Fill(id, 200); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("want ErrAlreadyTerminal, got %v", err)
	}

	after := e.Wallet()
	if !approx(before.Cash, after.Cash) || !approx(before.Equity, after.Equity) {
		t.Fatalf("double fill mutated the wallet: %+v vs %+v", before, after)
	}
	if len(e.Trades()) != tradesBefore {
		t.Fatal("double fill appended a trade")
	}
}

func TestFillUnknownOrder(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Fill("no-such-order", 100); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("want ErrUnknownOrder, got %v", err)
	}
}

func TestPartialCloseKeepsAveragePrice(t *testing.T) {
	e := newTestEngine(t)
	setFrictionless(t, e)

	mustFillLimit(t, e, "BTCUSDT", SideBuy, 10, 100)
	mustFillLimit(t, e, "BTCUSDT", SideSell, 4, 120)

	pos, ok := e.Position("BTCUSDT")
	if !ok {
		t.Fatal("position missing after partial close")
	}
	if !approx(pos.Qty, 6) {
		t.Fatalf("qty: want 6, got %v", pos.Qty)
	}
	if !approx(pos.AvgPrice, 100) {
		t.Fatalf("partial close must keep avg price: want 100, got %v", pos.AvgPrice)
	}
}

func TestSameSideAddBlendsAveragePrice(t *testing.T) {
	e := newTestEngine(t)
	setFrictionless(t, e)

	mustFillLimit(t, e, "BTCUSDT", SideBuy, 10, 100)
	mustFillLimit(t, e, "BTCUSDT", SideBuy, 10, 120)

	pos, _ := e.Position("BTCUSDT")
	if !approx(pos.Qty, 20) || !approx(pos.AvgPrice, 110) {
		t.Fatalf("want 20@110, got %v@%v", pos.Qty, pos.AvgPrice)
	}
}

// Long 5 at avg 100, SELL 8 at 90: the flip leaves the residual short
// of 3 opened at the fill price.
func TestFlipOpensResidualAtFillPrice(t *testing.T) {
	e := newTestEngine(t)
	setFrictionless(t, e)

	mustFillLimit(t, e, "BTCUSDT", SideBuy, 5, 100)
	mustFillLimit(t, e, "BTCUSDT", SideSell, 8, 90)

	pos, ok := e.Position("BTCUSDT")
	if !ok {
		t.Fatal("position missing after flip")
	}
	if !approx(pos.Qty, -3) {
		t.Fatalf("qty: want -3, got %v", pos.Qty)
	}
	if !approx(pos.AvgPrice, 90) {
		t.Fatalf("flip residual avg: want 90, got %v", pos.AvgPrice)
	}

	w := e.Wallet()
	if !approx(w.Equity, w.Cash+pos.Qty*pos.AvgPrice) {
		t.Fatalf("conservation violated after flip: %+v", w)
	}
}

func TestFullCloseRemovesPosition(t *testing.T) {
	e := newTestEngine(t)
	setFrictionless(t, e)

	mustFillLimit(t, e, "BTCUSDT", SideBuy, 2, 100)
	mustFillLimit(t, e, "BTCUSDT", SideSell, 2, 150)

	if _, ok := e.Position("BTCUSDT"); ok {
		t.Fatal("position must be removed when qty reaches zero")
	}
	w := e.Wallet()
	// 10000 - 200 + 300 = 10100, all cash.
	if !approx(w.Cash, 10100) || !approx(w.Equity, 10100) {
		t.Fatalf("wallet after round trip: %+v", w)
	}
}

func TestSellWithNoPositionOpensShort(t *testing.T) {
	e := newTestEngine(t)
	setFrictionless(t, e)

	mustFillLimit(t, e, "SOLUSDT", SideSell, 3, 200)

	pos, ok := e.Position("SOLUSDT")
	if !ok {
		t.Fatal("short position not opened")
	}
	if !approx(pos.Qty, -3) || !approx(pos.AvgPrice, 200) {
		t.Fatalf("want -3@200, got %v@%v", pos.Qty, pos.AvgPrice)
	}
	w := e.Wallet()
	if !approx(w.Cash, 10600) {
		t.Fatalf("cash: want 10600, got %v", w.Cash)
	}
	if !approx(w.Equity, 10600+(-3)*200) {
		t.Fatalf("equity: want 10000, got %v", w.Equity)
	}
}

// Conservation: cash + sum(qty*avgPrice) == equity after every fill,
// over a randomized order sequence with fees and slippage on.
func TestConservationUnderRandomFills(t *testing.T) {
	e := newTestEngine(t)
	rng := rand.New(rand.NewSource(42))
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	for i := 0; i < 200; i++ {
		spec := OrderSpec{
			Symbol: symbols[rng.Intn(len(symbols))],
			Side:   SideBuy,
			Type:   TypeMarket,
			Qty:    rng.Float64()*2 + 0.01,
		}
		if rng.Intn(2) == 0 {
			spec.Side = SideSell
		}
		if rng.Intn(2) == 0 {
			spec.Type = TypeLimit
			spec.Price = rng.Float64()*1000 + 50
		}
		id, err := e.SubmitOrder(spec)
		if err != nil {
			t.Fatalf("SubmitOrder: %v", err)
		}
		if err := e.Fill(id, rng.Float64()*1000+50); err != nil {
			t.Fatalf("Fill: %v", err)
		}

		w := e.Wallet()
		var basis float64
		for sym, p := range w.Positions {
			if p.Qty == 0 {
				t.Fatalf("zero-qty position for %s survived", sym)
			}
			basis += p.Qty * p.AvgPrice
		}
		if math.Abs(w.Cash+basis-w.Equity) > 1e-6 {
			t.Fatalf("conservation violated at fill %d: cash=%v basis=%v equity=%v", i, w.Cash, basis, w.Equity)
		}
	}
}

func TestCancelOrder(t *testing.T) {
	e := newTestEngine(t)

	id, _ := e.SubmitOrder(OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeLimit, Qty: 1, Price: 100})
	if err := e.CancelOrder(id); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	order, _ := e.Order(id)
	if order.Status != StatusCanceled {
		t.Fatalf("want CANCELED, got %s", order.Status)
	}

	// Second cancel reports terminal and changes nothing.
	if err := e.CancelOrder(id); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("want ErrAlreadyTerminal, got %v", err)
	}
	order, _ = e.Order(id)
	if order.Status != StatusCanceled {
		t.Fatalf("second cancel changed status to %s", order.Status)
	}

	// A canceled order can never fill.
	if err := e.Fill(id, 100); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("want ErrAlreadyTerminal, got %v", err)
	}
	if len(e.Trades()) != 0 {
		t.Fatal("canceled order produced a trade")
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	e := newTestEngine(t)
	if err := e.CancelOrder("missing"); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("want ErrUnknownOrder, got %v", err)
	}
}

func TestInitializeValidation(t *testing.T) {
	e := NewEngine("user-1", nil)

	if err := e.Initialize("EUR", 5000); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("want ErrInvalidCurrency, got %v", err)
	}
	if err := e.Initialize(CurrencyUSD, -1); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("want ErrInvalidSettings, got %v", err)
	}
	if err := e.Initialize(CurrencyINR, 250000); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	w := e.Wallet()
	if w.BaseCurrency != CurrencyINR || !approx(w.Cash, 250000) {
		t.Fatalf("wallet after init: %+v", w)
	}
	if !e.Initialized() {
		t.Fatal("Initialized should be true after Initialize")
	}
}

func TestInitializeWipesPreviousSession(t *testing.T) {
	e := newTestEngine(t)
	setFrictionless(t, e)
	mustFillLimit(t, e, "BTCUSDT", SideBuy, 1, 100)
	if _, err := e.AddJournalEntry("", "breakout", "hold to 120", ""); err != nil {
		t.Fatalf("AddJournalEntry: %v", err)
	}

	if err := e.Initialize(CurrencyUSD, 5000); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	w := e.Wallet()
	if w.BaseCurrency != CurrencyUSD || !approx(w.Cash, 5000) || len(w.Positions) != 0 {
		t.Fatalf("wallet not reset: %+v", w)
	}
	if len(e.Orders("")) != 0 || len(e.Trades()) != 0 || len(e.Journal()) != 0 {
		t.Fatal("ledgers not wiped by Initialize")
	}
	if len(e.EquityHistory()) != 1 {
		t.Fatalf("equity history should restart with one sample, got %d", len(e.EquityHistory()))
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	e := NewEngine("user-1", nil)
	if err := e.Initialize(CurrencyINR, 777777); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	custom := DefaultRiskSettings()
	custom.FeePct = 1.5
	if err := e.SetRiskSettings(custom); err != nil {
		t.Fatalf("SetRiskSettings: %v", err)
	}

	e.Reset()

	w := e.Wallet()
	if w.BaseCurrency != DefaultBaseCurrency {
		t.Fatalf("reset currency: want %s, got %s", DefaultBaseCurrency, w.BaseCurrency)
	}
	if !approx(w.Cash, DefaultStartingBalance) || !approx(w.Equity, DefaultStartingBalance) {
		t.Fatalf("reset must restore the default balance, not the custom one: %+v", w)
	}
	if e.RiskSettings() != DefaultRiskSettings() {
		t.Fatalf("reset must restore default risk settings: %+v", e.RiskSettings())
	}
	if e.Initialized() {
		t.Fatal("reset session should report uninitialized")
	}
}

func TestOrdersStatusFilter(t *testing.T) {
	e := newTestEngine(t)

	a, _ := e.SubmitOrder(OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeLimit, Qty: 1, Price: 100})
	b, _ := e.SubmitOrder(OrderSpec{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeLimit, Qty: 1, Price: 100})
	if _, err := e.SubmitOrder(OrderSpec{Symbol: "BTCUSDT", Side: SideSell, Type: TypeMarket, Qty: 1}); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if err := e.Fill(a, 100); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if err := e.CancelOrder(b); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	if got := len(e.Orders("")); got != 3 {
		t.Fatalf("all orders: want 3, got %d", got)
	}
	if got := len(e.Orders(StatusNew)); got != 1 {
		t.Fatalf("NEW orders: want 1, got %d", got)
	}
	if got := len(e.Orders(StatusFilled)); got != 1 {
		t.Fatalf("FILLED orders: want 1, got %d", got)
	}
	if got := len(e.Orders(StatusCanceled)); got != 1 {
		t.Fatalf("CANCELED orders: want 1, got %d", got)
	}
}

func TestEquityHistorySamplesPerFill(t *testing.T) {
	e := newTestEngine(t)
	setFrictionless(t, e)

	mustFillLimit(t, e, "BTCUSDT", SideBuy, 1, 100)
	mustFillLimit(t, e, "BTCUSDT", SideSell, 1, 110)

	history := e.EquityHistory()
	if len(history) != 3 {
		t.Fatalf("want 3 samples (init + 2 fills), got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].At.Before(history[i-1].At) {
			t.Fatalf("equity history out of order at %d", i)
		}
	}
	if !approx(history[len(history)-1].Equity, 10010) {
		t.Fatalf("final equity sample: want 10010, got %v", history[len(history)-1].Equity)
	}
}
