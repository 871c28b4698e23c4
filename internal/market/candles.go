package market

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// Interval is a candle timeframe.
type Interval string

var intervalDurations = map[Interval]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// Horizon a signal at this timeframe speaks to.
var intervalHorizons = map[Interval]string{
	"1m":  "15m",
	"5m":  "1h",
	"15m": "4h",
	"1h":  "4h",
	"4h":  "1d",
	"1d":  "1w",
}

// ParseInterval validates a timeframe string.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}

// Duration returns the candle width.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// Horizon returns the outlook window for signals at this timeframe.
func (i Interval) Horizon() string {
	return intervalHorizons[i]
}

// Candle is one OHLCV bar. Time is unix seconds of the bar open.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Candles generates a synthetic OHLCV series ending at the current
// bar. The walk is seeded from symbol and interval so repeated calls
// return a consistent history instead of a brand new market each time.
func Candles(symbol string, interval Interval, count int) []Candle {
	if count <= 0 || count > 1000 {
		count = 1000
	}

	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte(interval))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	now := time.Now()
	step := interval.Duration()
	price := BasePrice(symbol)
	volume := 1_000_000.0

	out := make([]Candle, 0, count)
	for i := count - 1; i >= 0; i-- {
		const volatility = 0.02
		change := (rng.Float64() - 0.5) * volatility
		open := price
		close := price * (1 + change)
		high := math.Max(open, close) * (1 + rng.Float64()*0.01)
		low := math.Min(open, close) * (1 - rng.Float64()*0.01)

		out = append(out, Candle{
			Time:   now.Add(-time.Duration(i) * step).Unix(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: volume * (0.5 + rng.Float64()),
		})

		price = close
		volume *= 0.9 + rng.Float64()*0.2
	}
	return out
}
