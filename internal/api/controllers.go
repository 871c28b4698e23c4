package api

import (
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"papertrader/internal/market"
	"papertrader/internal/monitor"
	"papertrader/internal/risk"
	"papertrader/internal/sim"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"code": code, "error": msg})
}

// mapEngineError translates engine sentinels into HTTP responses.
func mapEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sim.ErrInvalidOrder):
		respondError(c, http.StatusBadRequest, "INVALID_ORDER", err.Error())
	case errors.Is(err, sim.ErrUnknownOrder):
		respondError(c, http.StatusNotFound, "UNKNOWN_ORDER", err.Error())
	case errors.Is(err, sim.ErrAlreadyTerminal):
		respondError(c, http.StatusConflict, "ALREADY_TERMINAL", err.Error())
	case errors.Is(err, sim.ErrInvalidCurrency), errors.Is(err, sim.ErrInvalidSettings):
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

// engine resolves the caller's session engine, creating or rehydrating
// it on first touch. Returns nil after writing the error response.
func (s *Server) engine(c *gin.Context) *sim.Engine {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "no authenticated user")
		return nil
	}
	eng, err := s.Sessions.GetOrCreate(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return nil
	}
	return eng
}

// initializedEngine is engine plus the requirement that the session
// has been initialized. Trading and portfolio endpoints refuse to act
// on the implicit default wallet.
func (s *Server) initializedEngine(c *gin.Context) *sim.Engine {
	eng := s.engine(c)
	if eng == nil {
		return nil
	}
	if !eng.Initialized() {
		respondError(c, http.StatusConflict, "NOT_INITIALIZED", "session not initialized, call /session/init first")
		return nil
	}
	return eng
}

// --- Session lifecycle ---

func (s *Server) initSession(c *gin.Context) {
	var req struct {
		BaseCurrency    string  `json:"base_currency" binding:"required,oneof=USDT USD INR"`
		StartingBalance float64 `json:"starting_balance" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	eng := s.engine(c)
	if eng == nil {
		return
	}
	if err := eng.Initialize(sim.Currency(req.BaseCurrency), req.StartingBalance); err != nil {
		mapEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, eng.Wallet())
}

func (s *Server) resetSession(c *gin.Context) {
	eng := s.engine(c)
	if eng == nil {
		return
	}
	eng.Reset()
	c.JSON(http.StatusOK, eng.Wallet())
}

func (s *Server) getSession(c *gin.Context) {
	eng := s.engine(c)
	if eng == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"initialized":      eng.Initialized(),
		"starting_balance": eng.StartingBalance(),
		"wallet":           eng.Wallet(),
		"risk_settings":    eng.RiskSettings(),
	})
}

// --- Orders ---

func (s *Server) createOrder(c *gin.Context) {
	var req struct {
		Symbol string  `json:"symbol" binding:"required"`
		Side   string  `json:"side" binding:"required,oneof=BUY SELL"`
		Type   string  `json:"type" binding:"required,oneof=MARKET LIMIT"`
		Qty    float64 `json:"qty" binding:"required,gt=0"`
		Price  float64 `json:"price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	eng := s.initializedEngine(c)
	if eng == nil {
		return
	}

	// Reference price for risk checks: the limit price for LIMIT
	// orders, the live cached price for MARKET orders.
	refPrice := req.Price
	if req.Type == string(sim.TypeMarket) {
		p, ok := s.Prices.Get(req.Symbol)
		if !ok {
			respondError(c, http.StatusUnprocessableEntity, "NO_MARKET_PRICE", "no market price available for "+req.Symbol)
			return
		}
		refPrice = p
	}

	portfolio := eng.Portfolio(s.Prices.All())
	decision := risk.Evaluate(risk.Input{
		Notional:        req.Qty * refPrice,
		Equity:          portfolio.Equity,
		DailyPnL:        portfolio.DailyPnL,
		StartingBalance: eng.StartingBalance(),
	}, eng.RiskSettings())
	if !decision.Allowed {
		respondError(c, http.StatusUnprocessableEntity, "RISK_REJECTED", decision.Reason)
		return
	}

	orderID, err := eng.SubmitOrder(sim.OrderSpec{
		Symbol: req.Symbol,
		Side:   sim.Side(req.Side),
		Type:   sim.OrderType(req.Type),
		Qty:    req.Qty,
		Price:  req.Price,
	})
	if err != nil {
		mapEngineError(c, err)
		return
	}
	s.Metrics.IncrementOrders()

	// MARKET orders execute immediately against the cached price.
	if req.Type == string(sim.TypeMarket) {
		timer := monitor.NewTimer(s.Metrics.FillLatency)
		if err := eng.Fill(orderID, refPrice); err != nil {
			mapEngineError(c, err)
			return
		}
		timer.Stop()
		s.Metrics.IncrementFills()
	}

	order, err := eng.Order(orderID)
	if err != nil {
		mapEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) fillOrder(c *gin.Context) {
	var req struct {
		Price float64 `json:"price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	eng := s.initializedEngine(c)
	if eng == nil {
		return
	}
	orderID := c.Param("id")

	marketPrice := req.Price
	if marketPrice <= 0 {
		order, err := eng.Order(orderID)
		if err != nil {
			mapEngineError(c, err)
			return
		}
		p, ok := s.Prices.Get(order.Symbol)
		if !ok {
			respondError(c, http.StatusUnprocessableEntity, "NO_MARKET_PRICE", "no market price available for "+order.Symbol)
			return
		}
		marketPrice = p
	}

	timer := monitor.NewTimer(s.Metrics.FillLatency)
	if err := eng.Fill(orderID, marketPrice); err != nil {
		mapEngineError(c, err)
		return
	}
	timer.Stop()
	s.Metrics.IncrementFills()

	order, err := eng.Order(orderID)
	if err != nil {
		mapEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) cancelOrder(c *gin.Context) {
	eng := s.initializedEngine(c)
	if eng == nil {
		return
	}
	orderID := c.Param("id")
	if err := eng.CancelOrder(orderID); err != nil {
		mapEngineError(c, err)
		return
	}
	order, err := eng.Order(orderID)
	if err != nil {
		mapEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) listOrders(c *gin.Context) {
	eng := s.engine(c)
	if eng == nil {
		return
	}
	status := sim.OrderStatus(c.Query("status"))
	switch status {
	case "", sim.StatusNew, sim.StatusFilled, sim.StatusCanceled, sim.StatusRejected:
	default:
		respondError(c, http.StatusBadRequest, "VALIDATION", "unknown order status")
		return
	}
	orders := eng.Orders(status)
	if orders == nil {
		orders = []sim.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// --- Read models ---

func (s *Server) listTrades(c *gin.Context) {
	eng := s.engine(c)
	if eng == nil {
		return
	}
	trades := eng.Trades()
	if trades == nil {
		trades = []sim.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) getWallet(c *gin.Context) {
	eng := s.engine(c)
	if eng == nil {
		return
	}
	c.JSON(http.StatusOK, eng.Wallet())
}

func (s *Server) getPositions(c *gin.Context) {
	eng := s.initializedEngine(c)
	if eng == nil {
		return
	}
	positions := eng.Portfolio(s.Prices.All()).Positions
	if positions == nil {
		positions = []sim.PositionView{}
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) getPortfolio(c *gin.Context) {
	eng := s.initializedEngine(c)
	if eng == nil {
		return
	}
	c.JSON(http.StatusOK, eng.Portfolio(s.Prices.All()))
}

func (s *Server) getEquityHistory(c *gin.Context) {
	eng := s.initializedEngine(c)
	if eng == nil {
		return
	}
	history := eng.EquityHistory()
	if history == nil {
		history = []sim.EquityPoint{}
	}
	c.JSON(http.StatusOK, gin.H{"equity_history": history})
}

// --- Risk ---

func (s *Server) getRiskSettings(c *gin.Context) {
	eng := s.engine(c)
	if eng == nil {
		return
	}
	c.JSON(http.StatusOK, eng.RiskSettings())
}

func (s *Server) updateRiskSettings(c *gin.Context) {
	var settings sim.RiskSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	eng := s.engine(c)
	if eng == nil {
		return
	}
	if err := eng.SetRiskSettings(settings); err != nil {
		mapEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, eng.RiskSettings())
}

func (s *Server) listRiskPresets(c *gin.Context) {
	presets, err := s.DB.ListRiskPresets(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	out := make([]gin.H, 0, len(presets))
	for _, p := range presets {
		out = append(out, gin.H{
			"name": p.Name,
			"settings": sim.RiskSettings{
				MaxPositionSizePct: p.MaxPositionSizePct,
				StopLossPct:        p.StopLossPct,
				TakeProfitPct:      p.TakeProfitPct,
				MaxDailyLossPct:    p.MaxDailyLossPct,
				FeePct:             p.FeePct,
				SlippagePct:        p.SlippagePct,
			},
		})
	}
	c.JSON(http.StatusOK, gin.H{"presets": out})
}

// --- Journal ---

func (s *Server) addJournalEntry(c *gin.Context) {
	var req struct {
		TradeID string `json:"trade_id"`
		Why     string `json:"why" binding:"required"`
		Plan    string `json:"plan"`
		Lesson  string `json:"lesson"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	eng := s.engine(c)
	if eng == nil {
		return
	}
	entry, err := eng.AddJournalEntry(req.TradeID, req.Why, req.Plan, req.Lesson)
	if err != nil {
		mapEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) listJournal(c *gin.Context) {
	eng := s.engine(c)
	if eng == nil {
		return
	}
	entries := eng.Journal()
	if entries == nil {
		entries = []sim.JournalEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"journal": entries})
}

// --- Export / import ---

func (s *Server) exportSession(c *gin.Context) {
	eng := s.engine(c)
	if eng == nil {
		return
	}
	c.JSON(http.StatusOK, eng.ExportSnapshot())
}

func (s *Server) importSession(c *gin.Context) {
	var snap sim.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	eng := s.engine(c)
	if eng == nil {
		return
	}
	if err := eng.Restore(snap); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	c.JSON(http.StatusOK, eng.Wallet())
}

// --- Market data ---

func (s *Server) getCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION", "symbol is required")
		return
	}
	intervalStr := c.DefaultQuery("interval", "1h")
	interval, err := market.ParseInterval(intervalStr)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	limit := 200
	if raw := c.Query("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "VALIDATION", "limit must be a positive integer")
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"interval": string(interval),
		"candles":  market.Candles(symbol, interval, limit),
	})
}

func (s *Server) getSignals(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION", "symbol is required")
		return
	}
	intervalStr := c.DefaultQuery("interval", "1h")
	interval, err := market.ParseInterval(intervalStr)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	candles := market.Candles(symbol, interval, 200)
	signals := market.Signals(symbol, interval, candles)
	if signals == nil {
		signals = []market.Signal{}
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "signals": signals})
}

func (s *Server) getLeaderboard(c *gin.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	c.JSON(http.StatusOK, gin.H{"leaderboard": market.Leaderboard(rng)})
}

// --- Metrics ---

func (s *Server) getMetrics(c *gin.Context) {
	resp := gin.H{"system": s.Metrics.GetSnapshot()}
	if s.Persist != nil {
		resp["persistence"] = s.Persist.GetMetrics()
	}
	c.JSON(http.StatusOK, resp)
}
