package market

import (
	"math"
	"math/rand"
	"sort"
)

// LeaderRow is one synthetic leaderboard entry.
type LeaderRow struct {
	Username  string  `json:"username"`
	ReturnPct float64 `json:"return_pct"`
	MaxDDPct  float64 `json:"max_dd_pct"`
	Trades    int     `json:"trades"`
	Sharpe    float64 `json:"sharpe"`
	Rank      int     `json:"rank"`
}

var leaderNames = []string{
	"CryptoMaster", "TradeWizard", "BullRunner", "BearHunter", "DiamondHands",
	"PaperTrader", "ChartGuru", "RiskTaker", "SafeTrader", "MoonShot",
	"Hodler2023", "SwingKing", "DayTraderX", "TrendFollower", "ValueHunter",
	"TechAnalyst", "NewsTrader", "VolatilityKing", "ArbitrageBot", "SmartMoney",
}

// Leaderboard returns a freshly rolled synthetic ranking, best return
// first, ranks assigned after sorting.
func Leaderboard(rng *rand.Rand) []LeaderRow {
	rows := make([]LeaderRow, len(leaderNames))
	for i, name := range leaderNames {
		rows[i] = LeaderRow{
			Username:  name,
			ReturnPct: round2(rng.Float64()*200 - 50),
			MaxDDPct:  round2(rng.Float64()*40 + 5),
			Trades:    rng.Intn(500) + 50,
			Sharpe:    round2(rng.Float64()*4 - 1),
		}
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].ReturnPct > rows[b].ReturnPct })
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
