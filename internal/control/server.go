// Package control exposes the device runtime over a small local HTTP API so a
// dashboard, test rig or head unit can drive it without a GUI toolkit.
package control

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/carlink/internal/auth"
	"github.com/danmuck/carlink/internal/device"
	"github.com/danmuck/carlink/internal/events"
	"github.com/danmuck/carlink/internal/history"
	"github.com/danmuck/carlink/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	DefaultListenAddr = "127.0.0.1:8740"
	Version           = "0.1.0"
	shutdownGrace     = 2 * time.Second
)

// Device is the runtime surface the API drives.
type Device interface {
	Ready() bool
	SelectPeer(ctx context.Context, peer string) (string, error)
	CancelOutgoing(ctx context.Context) (string, error)
	Decide(ctx context.Context, id string, accept bool) error
	Peers(ctx context.Context) ([]string, error)
	Pending(ctx context.Context) ([]device.IncomingView, error)
	Status(ctx context.Context) (device.Status, error)
}

// EventSource serves the recent event ring.
type EventSource interface {
	Recent(n int) []events.Event
}

// HistorySource serves persisted exchanges. May be nil when history is disabled.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

type Config struct {
	ListenAddr  string
	CORSOrigins []string
	// AuthToken, when set, is required as a bearer token on every route except
	// health, readiness and metrics.
	AuthToken string
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:  DefaultListenAddr,
		CORSOrigins: []string{"http://localhost:3000"},
	}
}

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	router  *gin.Engine
	auth    auth.Validator
	device  Device
	events  EventSource
	history HistorySource
}

func New(id string, cfg Config, dev Device, ev EventSource, hist HistorySource) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	addr := strings.TrimSpace(cfg.ListenAddr)
	if addr == "" {
		addr = DefaultListenAddr
	}
	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		router:   r,
		device:   dev,
		events:   ev,
		history:  hist,
	}
	if token := strings.TrimSpace(cfg.AuthToken); token != "" {
		s.auth = auth.StaticToken{Token: token}
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Info().Str("addr", s.Addr).Msg("control: listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
