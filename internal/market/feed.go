// Package market provides the synthetic market data the simulator
// trades against: a random-walk tick feed, candle series, signals and
// a leaderboard. There is no exchange connectivity anywhere.
package market

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"papertrader/internal/events"
)

// Documented base prices for the default symbols; unknown symbols walk
// from 100.
var basePrices = map[string]float64{
	"BTCUSDT":   45000,
	"ETHUSDT":   2800,
	"ADAUSDT":   0.45,
	"SOLUSDT":   95,
	"DOTUSDT":   7.2,
	"AVAXUSDT":  38,
	"MATICUSDT": 0.85,
	"LINKUSDT":  15.4,
}

// BasePrice returns the anchor price a symbol's walk starts from.
func BasePrice(symbol string) float64 {
	if p, ok := basePrices[symbol]; ok {
		return p
	}
	return 100
}

// PriceCache holds the latest tick per symbol. The API layer reads it
// to fill MARKET orders and to mark positions.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewPriceCache returns an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]float64)}
}

// Set stores the latest price for a symbol.
func (c *PriceCache) Set(symbol string, price float64) {
	c.mu.Lock()
	c.prices[symbol] = price
	c.mu.Unlock()
}

// Get returns the latest price for a symbol.
func (c *PriceCache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[symbol]
	return p, ok
}

// All returns a copy of every cached price.
func (c *PriceCache) All() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}

// MockFeed publishes a synthetic random-walk tick per symbol on the
// event bus and keeps the price cache current.
type MockFeed struct {
	Bus      *events.Bus
	Cache    *PriceCache
	Symbols  []string
	Interval time.Duration
}

// Start launches the feed goroutine; it stops when ctx is canceled.
func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("[FEED] bus not set, feed disabled")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	prices := make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		prices[sym] = BasePrice(sym)
		if m.Cache != nil {
			m.Cache.Set(sym, prices[sym])
		}
	}

	go func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, sym := range m.Symbols {
					// Multiplicative walk so cheap and expensive
					// symbols move proportionally.
					prices[sym] *= 1 + (rng.Float64()-0.5)*0.002
					if m.Cache != nil {
						m.Cache.Set(sym, prices[sym])
					}
					m.Bus.Publish(events.EventPriceTick, events.Tick{
						Symbol: sym,
						Price:  prices[sym],
						At:     time.Now().UnixMilli(),
					})
				}
			}
		}
	}()
}
