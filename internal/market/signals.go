package market

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// SignalAction is the suggested direction of a signal.
type SignalAction string

const (
	SignalBuy  SignalAction = "BUY"
	SignalSell SignalAction = "SELL"
	SignalHold SignalAction = "HOLD"
)

// Signal is a synthetic trade idea attached to a candle.
type Signal struct {
	ID         string       `json:"id"`
	Symbol     string       `json:"symbol"`
	Interval   Interval     `json:"interval"`
	Action     SignalAction `json:"action"`
	Confidence float64      `json:"confidence"`
	Horizon    string       `json:"horizon"`
	Reasons    []string     `json:"reasons"`
	At         time.Time    `json:"at"`
}

var signalReasons = []string{
	"RSI oversold (< 30)",
	"RSI overbought (> 70)",
	"MA(20) golden cross MA(50)",
	"MA(20) death cross MA(50)",
	"Volume spike (+200%)",
	"Bullish divergence detected",
	"Bearish divergence detected",
	"Support level hold",
	"Resistance level break",
	"Hammer candlestick pattern",
	"Doji formation at key level",
	"Engulfing pattern confirmed",
}

// Signals derives sparse synthetic signals from a candle series:
// roughly one candle in twenty carries one, the direction leaning with
// the recent trend. At most the last 20 are returned.
func Signals(symbol string, interval Interval, candles []Candle) []Signal {
	h := fnv.New64a()
	h.Write([]byte("signals:" + symbol))
	h.Write([]byte(interval))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	var out []Signal
	for i, c := range candles {
		if i <= 50 || rng.Float64() >= 0.05 {
			continue
		}

		uptrend := true
		for j := i - 9; j <= i; j++ {
			if candles[j].Close < candles[j-1].Close*0.99 {
				uptrend = false
				break
			}
		}

		action := SignalHold
		switch {
		case uptrend && rng.Float64() > 0.3:
			action = SignalBuy
		case !uptrend && rng.Float64() > 0.3:
			action = SignalSell
		}

		reasons := make([]string, len(signalReasons))
		copy(reasons, signalReasons)
		rng.Shuffle(len(reasons), func(a, b int) { reasons[a], reasons[b] = reasons[b], reasons[a] })
		n := 2 + rng.Intn(3)

		out = append(out, Signal{
			ID:         uuid.NewString(),
			Symbol:     symbol,
			Interval:   interval,
			Action:     action,
			Confidence: 0.6 + rng.Float64()*0.4,
			Horizon:    interval.Horizon(),
			Reasons:    reasons[:n],
			At:         time.Unix(c.Time, 0).UTC(),
		})
	}

	if len(out) > 20 {
		out = out[len(out)-20:]
	}
	return out
}
