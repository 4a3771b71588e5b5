package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"signal-engine/internal/market"
	"signal-engine/internal/risk"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).String(),
		"symbols": s.signals.Symbols(),
	})
}

func (s *Server) handleListSignals(c *gin.Context) {
	snapshots := make([]interface{}, 0)
	for _, symbol := range s.signals.Symbols() {
		if snap, ok := s.signals.Snapshot(symbol); ok {
			snapshots = append(snapshots, snap)
		}
	}
	c.JSON(http.StatusOK, gin.H{"signals": snapshots})
}

func (s *Server) handleGetSignal(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	snap, ok := s.signals.Snapshot(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no signal state for symbol " + symbol})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleGetFrame returns the latest row of every indicator column plus the
// signal flags, the detail view behind the snapshot summary.
func (s *Server) handleGetFrame(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	frame, ok := s.signals.Frame(symbol)
	if !ok || frame.Len() == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frame for symbol " + symbol})
		return
	}

	last := frame.Len() - 1
	columns := make(map[string]interface{})
	for _, name := range frame.ColumnNames() {
		columns[name] = jsonFloat(frame.Latest(name))
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":         symbol,
		"rows":           frame.Len(),
		"open_time":      frame.Times[last],
		"trend":          frame.Trend[last].String(),
		"trend_fallback": frame.TrendFallback,
		"columns":        columns,
		"enter_long":     frame.EnterLong[last] == 1,
		"enter_short":    frame.EnterShort[last] == 1,
		"exit_long":      frame.ExitLong[last] == 1,
		"exit_short":     frame.ExitShort[last] == 1,
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := s.signals.RefreshSymbol(ctx, symbol); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	snap, _ := s.signals.Snapshot(symbol)
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleStopLoss(c *gin.Context) {
	symbol := strings.ToUpper(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol query parameter is required"})
		return
	}

	side := market.SideLong
	if strings.EqualFold(c.Query("side"), "short") {
		side = market.SideShort
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"side":      string(side),
		"stop_loss": s.signals.StopLoss(symbol, side),
	})
}

func (s *Server) handleLeverage(c *gin.Context) {
	symbol := strings.ToUpper(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol query parameter is required"})
		return
	}

	proposed := parseFloatOr(c.Query("proposed"), 1.0)
	maxLeverage := parseFloatOr(c.Query("max"), s.config.MaxLeverage)

	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"leverage": s.signals.Leverage(symbol, proposed, maxLeverage),
		"max":      maxLeverage,
	})
}

func (s *Server) handleROILadder(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ladder":             risk.DefaultROILadder(),
		"exit_profit_offset": risk.ExitProfitOffset,
	})
}

func parseFloatOr(raw string, fallback float64) float64 {
	if raw == "" {
		return fallback
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return fallback
}

// jsonFloat maps NaN to null; encoding/json rejects NaN outright
func jsonFloat(v float64) interface{} {
	if v != v {
		return nil
	}
	return v
}
