package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"momentum-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEvent is the envelope pushed to dashboard clients.
type wsEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// websocket streams decisions, trade closes and risk alerts to the client.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	decisions, unsubD := s.Bus.Subscribe(events.EventDecision, 100)
	defer unsubD()
	trades, unsubT := s.Bus.Subscribe(events.EventTradeClosed, 100)
	defer unsubT()
	alerts, unsubA := s.Bus.Subscribe(events.EventRiskAlert, 100)
	defer unsubA()

	for {
		var ev wsEvent
		select {
		case msg, ok := <-decisions:
			if !ok {
				return
			}
			ev = wsEvent{Type: string(events.EventDecision), Payload: msg}
		case msg, ok := <-trades:
			if !ok {
				return
			}
			ev = wsEvent{Type: string(events.EventTradeClosed), Payload: msg}
		case msg, ok := <-alerts:
			if !ok {
				return
			}
			ev = wsEvent{Type: string(events.EventRiskAlert), Payload: msg}
		}
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
