package market

import (
	"math/rand"
	"testing"
)

func TestCandlesShape(t *testing.T) {
	iv, err := ParseInterval("1h")
	if err != nil {
		t.Fatalf("ParseInterval: %v", err)
	}

	candles := Candles("BTCUSDT", iv, 200)
	if len(candles) != 200 {
		t.Fatalf("want 200 candles, got %d", len(candles))
	}

	step := int64(iv.Duration().Seconds())
	for i, c := range candles {
		if c.High < c.Open || c.High < c.Close {
			t.Fatalf("candle %d: high below open/close: %+v", i, c)
		}
		if c.Low > c.Open || c.Low > c.Close {
			t.Fatalf("candle %d: low above open/close: %+v", i, c)
		}
		if c.Open <= 0 || c.Volume <= 0 {
			t.Fatalf("candle %d: non-positive price/volume: %+v", i, c)
		}
		if i > 0 {
			if c.Time-candles[i-1].Time != step {
				t.Fatalf("candle %d: uneven spacing %d", i, c.Time-candles[i-1].Time)
			}
			if c.Open != candles[i-1].Close {
				t.Fatalf("candle %d: gap between close and next open", i)
			}
		}
	}
}

func TestCandlesDeterministicPerSeries(t *testing.T) {
	a := Candles("ETHUSDT", "15m", 50)
	b := Candles("ETHUSDT", "15m", 50)
	for i := range a {
		if a[i].Open != b[i].Open || a[i].Close != b[i].Close {
			t.Fatalf("series not stable at candle %d", i)
		}
	}

	c := Candles("SOLUSDT", "15m", 50)
	same := true
	for i := range a {
		if a[i].Close != c[i].Close {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different symbols produced identical walks")
	}
}

func TestParseIntervalRejectsUnknown(t *testing.T) {
	if _, err := ParseInterval("3h"); err == nil {
		t.Fatal("want error for unknown interval")
	}
}

func TestSignalsAreSparseAndCapped(t *testing.T) {
	candles := Candles("BTCUSDT", "1h", 1000)
	signals := Signals("BTCUSDT", "1h", candles)

	if len(signals) == 0 {
		t.Fatal("a 1000-candle series should carry some signals")
	}
	if len(signals) > 20 {
		t.Fatalf("signals must be capped at 20, got %d", len(signals))
	}
	for _, s := range signals {
		if s.Confidence < 0.6 || s.Confidence > 1.0 {
			t.Fatalf("confidence out of range: %v", s.Confidence)
		}
		if len(s.Reasons) < 2 || len(s.Reasons) > 4 {
			t.Fatalf("want 2-4 reasons, got %d", len(s.Reasons))
		}
		switch s.Action {
		case SignalBuy, SignalSell, SignalHold:
		default:
			t.Fatalf("unknown action %q", s.Action)
		}
		if s.Horizon == "" {
			t.Fatal("missing horizon")
		}
	}
}

func TestLeaderboardRanking(t *testing.T) {
	rows := Leaderboard(rand.New(rand.NewSource(1)))
	if len(rows) != len(leaderNames) {
		t.Fatalf("want %d rows, got %d", len(leaderNames), len(rows))
	}
	for i, r := range rows {
		if r.Rank != i+1 {
			t.Fatalf("rank %d at index %d", r.Rank, i)
		}
		if i > 0 && rows[i-1].ReturnPct < r.ReturnPct {
			t.Fatalf("rows not sorted by return at %d", i)
		}
	}
}

func TestPriceCache(t *testing.T) {
	c := NewPriceCache()
	if _, ok := c.Get("BTCUSDT"); ok {
		t.Fatal("empty cache returned a price")
	}
	c.Set("BTCUSDT", 45000)
	p, ok := c.Get("BTCUSDT")
	if !ok || p != 45000 {
		t.Fatalf("got %v %v", p, ok)
	}
	all := c.All()
	all["BTCUSDT"] = 1
	if p, _ := c.Get("BTCUSDT"); p != 45000 {
		t.Fatal("All must return a copy")
	}
}
