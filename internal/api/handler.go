// Package api exposes the simulator over HTTP and WebSocket.
package api

import (
	"net/http"
	"time"

	"papertrader/internal/events"
	"papertrader/internal/market"
	"papertrader/internal/monitor"
	"papertrader/internal/persistence"
	"papertrader/internal/sim"
	"papertrader/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the session manager and the
// event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Sessions  *sim.Manager
	Prices    *market.PriceCache
	Metrics   *monitor.SystemMetrics
	Persist   *persistence.Writer
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Symbols []string
	Version string
}

func NewServer(bus *events.Bus, database *db.Database, sessions *sim.Manager, prices *market.PriceCache, metrics *monitor.SystemMetrics, persist *persistence.Writer, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                      // Panic recovery (first)
	r.Use(RequestIDMiddleware())               // Request ID tracking
	r.Use(RequestLogger(metrics))              // Request logging (after ID is set)
	r.Use(RateLimitMiddleware())               // Rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())                    // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Sessions:  sessions,
		Prices:    prices,
		Metrics:   metrics,
		Persist:   persist,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api/v1")
	{
		api.GET("/metrics", s.getMetrics)
		api.GET("/market/candles", s.getCandles)
		api.GET("/market/signals", s.getSignals)
		api.GET("/leaderboard", s.getLeaderboard)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/session/init", s.initSession)
			protected.POST("/session/reset", s.resetSession)
			protected.GET("/session", s.getSession)

			protected.POST("/orders", s.createOrder)
			protected.POST("/orders/:id/fill", s.fillOrder)
			protected.DELETE("/orders/:id", s.cancelOrder)
			protected.GET("/orders", s.listOrders)

			protected.GET("/trades", s.listTrades)
			protected.GET("/positions", s.getPositions)
			protected.GET("/wallet", s.getWallet)
			protected.GET("/portfolio", s.getPortfolio)
			protected.GET("/portfolio/equity-history", s.getEquityHistory)

			protected.GET("/risk", s.getRiskSettings)
			protected.PUT("/risk", s.updateRiskSettings)
			protected.GET("/risk/presets", s.listRiskPresets)

			protected.POST("/journal", s.addJournalEntry)
			protected.GET("/journal", s.listJournal)

			protected.GET("/export", s.exportSession)
			protected.POST("/import", s.importSession)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.Meta.Version})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
