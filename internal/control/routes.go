package control

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/carlink/internal/auth"
	"github.com/danmuck/carlink/internal/device"
	"github.com/danmuck/carlink/internal/events"
	"github.com/danmuck/carlink/internal/exchange"
	"github.com/danmuck/carlink/internal/history"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var ErrHistoryDisabled = errors.New("control: history disabled")

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": Version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := s.device.Ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	if s.auth != nil {
		api.Use(auth.Middleware(s.auth))
	}

	api.GET("/status", func(c *gin.Context) {
		st, err := s.device.Status(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	api.GET("/peers", func(c *gin.Context) {
		peers, err := s.device.Peers(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if peers == nil {
			peers = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"peers": peers})
	})

	api.POST("/peers/:peer/send", func(c *gin.Context) {
		peer := c.Param("peer")
		id, err := s.device.SelectPeer(c.Request.Context(), peer)
		if err != nil {
			writeError(c, err)
			return
		}
		log.Info().Str("peer", peer).Str("exchange", id).Msg("control: recording started")
		c.JSON(http.StatusAccepted, gin.H{"status": "recording", "exchange_id": id, "peer": peer})
	})

	api.DELETE("/outgoing", func(c *gin.Context) {
		id, err := s.device.CancelOutgoing(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled", "exchange_id": id})
	})

	api.GET("/incoming", func(c *gin.Context) {
		pending, err := s.device.Pending(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"incoming": pending})
	})

	api.POST("/incoming/:id/accept", s.decide(true))
	api.POST("/incoming/:id/reject", s.decide(false))

	api.GET("/events", func(c *gin.Context) {
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		recent := s.events.Recent(limit)
		if recent == nil {
			recent = []events.Event{}
		}
		c.JSON(http.StatusOK, gin.H{"events": recent})
	})

	api.GET("/history", func(c *gin.Context) {
		if s.history == nil {
			writeError(c, ErrHistoryDisabled)
			return
		}
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		entries, err := s.history.Recent(c.Request.Context(), history.ClampLimit(limit))
		if err != nil {
			writeError(c, err)
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		c.JSON(http.StatusOK, gin.H{"history": entries})
	})
}

func (s *Server) decide(accept bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := s.device.Decide(c.Request.Context(), id, accept); err != nil {
			writeError(c, err)
			return
		}
		status := "rejected"
		if accept {
			status = "speaking"
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "exchange_id": id})
	}
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// writeError reports 4xx errors as-is. 5xx detail stays in the log and the
// client gets the bare status text.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("control: request failed")
		c.JSON(status, gin.H{"error": strings.ToLower(http.StatusText(status))})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrBusy),
		errors.Is(err, exchange.ErrInvalidTransition),
		errors.Is(err, exchange.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, device.ErrUnknownPeer),
		errors.Is(err, device.ErrUnknownExchange),
		errors.Is(err, ErrHistoryDisabled):
		return http.StatusNotFound
	case errors.Is(err, device.ErrLinkDown),
		errors.Is(err, device.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
