// Package api serves the dashboard and control endpoints around the bot.
// Read endpoints are open; mutating endpoints require a bearer token.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"momentum-core/internal/bot"
	"momentum-core/internal/events"
	"momentum-core/pkg/db"
)

// Server wires HTTP endpoints around the bot and the event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Bot       *bot.Bot
	Store     *db.Store
	JWTSecret string
	AdminKey  string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Symbol      string
	Interval    string
	UseMockFeed bool
	Version     string
	StartedAt   time.Time
}

func NewServer(b *bot.Bot, bus *events.Bus, store *db.Store, meta SystemMeta, jwtSecret, adminKey string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		Bot:       b,
		Store:     store,
		JWTSecret: jwtSecret,
		AdminKey:  adminKey,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Router.Group("/api")
	{
		api.POST("/auth/login", s.login)

		api.GET("/status", s.getStatus)
		api.GET("/position", s.getPosition)
		api.GET("/trades", s.getTrades)
		api.GET("/stats", s.getStats)
		api.GET("/risk", s.getRisk)
		api.GET("/engine", s.getEngineState)

		// Control endpoints mutate trading state.
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/position/close", s.closePosition)
			protected.POST("/position/rollback", s.rollbackPosition)
			protected.POST("/risk/reset", s.resetRisk)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
