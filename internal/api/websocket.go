package api

import (
	"log"
	"net/http"

	"papertrader/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins for the local UI
	},
}

// websocket streams live price ticks to the client until it disconnects.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticks, unsub := s.Bus.Subscribe(events.EventPriceTick, 100)
	defer unsub()

	// Reader goroutine: detect client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-ticks:
			if !ok {
				return
			}
			tick, okCast := payload.(events.Tick)
			if !okCast {
				continue
			}
			if err := conn.WriteJSON(gin.H{"type": "tick", "data": tick}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
