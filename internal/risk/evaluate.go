// Package risk applies pre-trade checks at the API boundary. The
// execution engine itself never enforces caps; an order that reaches
// Fill always fills.
package risk

import (
	"fmt"

	"papertrader/internal/sim"
)

// Input carries the numbers a pre-trade check needs.
type Input struct {
	Notional        float64 // order qty * reference price
	Equity          float64
	DailyPnL        float64 // realized P&L for the current day
	StartingBalance float64
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Evaluate checks an order against the session's risk settings. A zero
// limit disables the corresponding check.
func Evaluate(in Input, settings sim.RiskSettings) Decision {
	if settings.MaxPositionSizePct > 0 && in.Equity > 0 {
		maxNotional := in.Equity * settings.MaxPositionSizePct / 100
		if in.Notional > maxNotional {
			return Decision{
				Reason: fmt.Sprintf("order notional %.2f exceeds %.0f%% of equity (max %.2f)",
					in.Notional, settings.MaxPositionSizePct, maxNotional),
			}
		}
	}

	if settings.MaxDailyLossPct > 0 && in.StartingBalance > 0 && in.DailyPnL < 0 {
		maxLoss := in.StartingBalance * settings.MaxDailyLossPct / 100
		if -in.DailyPnL >= maxLoss {
			return Decision{
				Reason: fmt.Sprintf("daily loss %.2f has reached the %.0f%% limit (%.2f)",
					-in.DailyPnL, settings.MaxDailyLossPct, maxLoss),
			}
		}
	}

	return Decision{Allowed: true}
}
