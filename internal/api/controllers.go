package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"momentum-core/internal/ledger"
)

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbol":         s.Meta.Symbol,
		"interval":       s.Meta.Interval,
		"use_mock_feed":  s.Meta.UseMockFeed,
		"version":        s.Meta.Version,
		"started_at":     s.Meta.StartedAt.UTC().Format(time.RFC3339),
		"uptime_sec":     int64(time.Since(s.Meta.StartedAt).Seconds()),
		"halted":         s.Bot.Risk().Halted(),
		"has_position":   s.Bot.Ledger().Position() != nil,
		"events_dropped": s.Bus.Dropped(),
	})
}

func (s *Server) getPosition(c *gin.Context) {
	p := s.Bot.Ledger().Position()
	if p == nil {
		c.JSON(http.StatusOK, gin.H{"position": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": p})
}

// getTrades returns closed trades, newest first. Reads from the database
// when one is wired so history survives restarts.
func (s *Server) getTrades(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_LIMIT",
				"error": "limit must be an integer in [1,1000]",
			})
			return
		}
		limit = n
	}

	if s.Store != nil {
		trades, err := s.Store.ListTrades(s.Bot.Symbol(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":  "INTERNAL_ERROR",
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": trades})
		return
	}

	trades := s.Bot.Ledger().Trades()
	// In-memory history is oldest first; flip and cap.
	out := make([]ledger.Trade, 0, limit)
	for i := len(trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, trades[i])
	}
	c.JSON(http.StatusOK, gin.H{"trades": out})
}

func (s *Server) getStats(c *gin.Context) {
	st := s.Bot.Ledger().Stats()
	c.JSON(http.StatusOK, gin.H{
		"stats":           st,
		"runtime_hours":   st.RuntimeHours(),
		"trades_per_hour": st.TradesPerHour(),
	})
}

func (s *Server) getRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.Bot.Risk().Status())
}

func (s *Server) getEngineState(c *gin.Context) {
	c.JSON(http.StatusOK, s.Bot.EngineState())
}

// closePosition force-sells the open position. Price defaults to the last
// marked price when the body omits it.
func (s *Server) closePosition(c *gin.Context) {
	var req struct {
		Price float64 `json:"price"`
	}
	// Empty body is fine.
	_ = c.BindJSON(&req)

	p := s.Bot.Ledger().Position()
	if p == nil {
		c.JSON(http.StatusConflict, gin.H{
			"code":  "NO_POSITION",
			"error": "no open position",
		})
		return
	}
	price := req.Price
	if price <= 0 {
		price = p.CurrentPrice
	}

	trade, err := s.Bot.ForceClose(price, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ledger.ErrNoPosition) {
			c.JSON(http.StatusConflict, gin.H{
				"code":  "NO_POSITION",
				"error": "no open position",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade})
}

// rollbackPosition drops a position whose order never filled and returns
// the committed margin.
func (s *Server) rollbackPosition(c *gin.Context) {
	if err := s.Bot.RollbackOpen(); err != nil {
		if errors.Is(err, ledger.ErrNoPosition) {
			c.JSON(http.StatusConflict, gin.H{
				"code":  "NO_POSITION",
				"error": "no open position",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rolled back"})
}

// resetRisk clears a drawdown halt and re-bases the peak balance.
func (s *Server) resetRisk(c *gin.Context) {
	s.Bot.ResetRisk()
	c.JSON(http.StatusOK, s.Bot.Risk().Status())
}
