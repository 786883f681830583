package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"candle-signals/internal/analysis"
	"candle-signals/internal/auth"
	"candle-signals/internal/binance"
	"candle-signals/internal/database"
	"candle-signals/internal/patterns"
	"candle-signals/internal/signals"
	"candle-signals/internal/stats"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	body := gin.H{
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	}

	body["cache"] = "disabled"
	if s.services.Cache != nil {
		// A degraded cache only slows requests down
		body["cache"] = "healthy"
		if !s.services.Cache.IsHealthy() {
			body["cache"] = "degraded"
		}
		body["cacheStats"] = s.services.Cache.GetStats()
	}

	body["database"] = "disabled"
	if s.services.History != nil {
		body["database"] = "healthy"
		if err := s.services.History.HealthCheck(ctx); err != nil {
			body["database"] = "unhealthy"
			status = "unhealthy"
		}
	}

	body["status"] = status
	if status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// handlePatterns lists the pattern catalogue
func (s *Server) handlePatterns(c *gin.Context) {
	specs := patterns.Catalogue()
	c.JSON(http.StatusOK, gin.H{
		"patterns": specs,
		"count":    len(specs),
	})
}

// handleAnalysis runs the per-candle analysis for one symbol
func (s *Server) handleAnalysis(c *gin.Context) {
	startTime, endTime, err := parseTimeRange(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	req := analysis.Request{
		Symbol:    c.Query("symbol"),
		Interval:  c.Query("interval"),
		StartTime: startTime,
		EndTime:   endTime,
	}
	req.SliceStart, req.SliceEnd = analysis.ParseCandleLength(c.Query("candleLength"))

	result, err := s.services.Analyzer.Run(c.Request.Context(), req)
	if err != nil {
		errorResponse(c, analysisStatus(err), err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

func analysisStatus(err error) int {
	var srcErr *binance.SourceError
	switch {
	case errors.Is(err, binance.ErrInvalidInterval), errors.Is(err, analysis.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, stats.ErrInvalidWindow):
		return http.StatusInternalServerError
	case errors.As(err, &srcErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleSignals scans the symbol list and returns the filtered groups
func (s *Server) handleSignals(c *gin.Context) {
	startTime, endTime, err := parseTimeRange(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var names []string
	if raw := c.Query("impact"); raw != "" {
		names = strings.Split(raw, ",")
	}
	impacts, bad := signals.ParseImpacts(names)
	if len(bad) > 0 {
		errorResponse(c, http.StatusBadRequest, fmt.Sprintf("unknown impact tiers: %s", strings.Join(bad, ", ")))
		return
	}

	result, err := s.services.Scanner.CachedScan(c.Request.Context(), signals.ScanRequest{
		Interval:  c.Query("interval"),
		StartTime: startTime,
		EndTime:   endTime,
		Impacts:   impacts,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, binance.ErrInvalidInterval) {
			status = http.StatusBadRequest
		} else if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		errorResponse(c, status, err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleLatestSignals returns the last background scan
func (s *Server) handleLatestSignals(c *gin.Context) {
	latest := s.services.Scanner.Latest(c.Request.Context())
	if latest == nil {
		errorResponse(c, http.StatusNotFound, "no background scan has completed yet")
		return
	}
	c.JSON(http.StatusOK, latest)
}

// handleSignalHistory lists persisted snapshots
func (s *Server) handleSignalHistory(c *gin.Context) {
	if s.services.History == nil {
		errorResponse(c, http.StatusServiceUnavailable, "signal history requires the database")
		return
	}

	interval := c.Query("interval")
	if interval != "" {
		if err := binance.ValidateInterval(interval); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	limit := defaultHistoryLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	snapshots, err := s.services.History.ListSignalSnapshots(c.Request.Context(), interval, limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list signal snapshots")
		errorResponse(c, http.StatusInternalServerError, "failed to load signal history")
		return
	}
	if snapshots == nil {
		snapshots = []database.SignalSnapshot{}
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// handleSignalSnapshot returns one persisted snapshot
func (s *Server) handleSignalSnapshot(c *gin.Context) {
	if s.services.History == nil {
		errorResponse(c, http.StatusServiceUnavailable, "signal history requires the database")
		return
	}

	snap, err := s.services.History.GetSignalSnapshot(c.Request.Context(), c.Param("scanId"))
	if errors.Is(err, database.ErrSnapshotNotFound) {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.log.WithError(err).Error("Failed to load signal snapshot")
		errorResponse(c, http.StatusInternalServerError, "failed to load signal snapshot")
		return
	}

	c.JSON(http.StatusOK, snap)
}

// handleToken exchanges the admin credential for an access token
func (s *Server) handleToken(c *gin.Context) {
	if s.services.Auth == nil {
		errorResponse(c, http.StatusNotFound, "authentication is disabled")
		return
	}

	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	token, err := s.services.Auth.Login(req.Username, req.Password)
	if err != nil {
		var authErr auth.AuthError
		if errors.As(err, &authErr) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   authErr.Code,
				"message": authErr.Message,
			})
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, token)
}

// handleWhoAmI returns the claims of the calling token
func (s *Server) handleWhoAmI(c *gin.Context) {
	claims := auth.GetUserClaims(c)
	if claims == nil {
		errorResponse(c, http.StatusNotFound, "authentication is disabled")
		return
	}
	c.JSON(http.StatusOK, claims)
}

// parseTimeRange reads the optional startTime and endTime epoch milliseconds
func parseTimeRange(c *gin.Context) (start, end *int64, err error) {
	parse := func(name string) (*int64, error) {
		raw := c.Query(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%s must be epoch milliseconds, got %q", name, raw)
		}
		return &v, nil
	}

	if start, err = parse("startTime"); err != nil {
		return nil, nil, err
	}
	if end, err = parse("endTime"); err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && *start > *end {
		return nil, nil, fmt.Errorf("startTime %d is after endTime %d", *start, *end)
	}
	return start, end, nil
}
