package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/complyport/screening-relay/internal/archive"
	"github.com/complyport/screening-relay/internal/config"
	"github.com/complyport/screening-relay/internal/http/middleware"
	"github.com/complyport/screening-relay/internal/metrics"
	"github.com/complyport/screening-relay/internal/relay"
)

type Server struct{ e *echo.Echo }

// Options carries the optional backends; any of them may be nil.
type Options struct {
	Redis      *redis.Client   // webhook rate limiting
	ClickHouse *sqlx.DB        // event archive + reports endpoint
	Audit      relay.AuditSink // kafka mirror
	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// NewServer wires the relay: event log, subscriber registry, broadcaster,
// ingester and poll service, plus the HTTP surface around them.
func NewServer(cfg config.Config, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// core relay
	eventLog := relay.NewEventLog(cfg.Relay.Capacity)
	registry := relay.NewRegistry()
	broadcaster := relay.NewBroadcaster(registry, logger)
	pollSvc := relay.NewPollService(eventLog)

	ingester := relay.NewIngester(eventLog, broadcaster, cfg.Relay.Source, logger)
	if opts.Audit != nil {
		ingester = ingester.WithAudit(opts.Audit)
	}

	var archiveStore archive.Store
	if opts.ClickHouse != nil {
		archiveStore = archive.NewClickHouseStore(opts.ClickHouse)
		ingester = ingester.WithArchive(archiveStore)
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metrics.MustRegister(reg)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          opts.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	e.POST("/webhook/alert", webhookHandler(ingester), rlMW)
	e.POST("/webhook/:vendor/alert", webhookHandler(ingester), rlMW)

	keepalive := cfg.Relay.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	e.GET("/events", streamHandler(broadcaster, keepalive))

	api := e.Group("/api")
	api.GET("/events", pollHandler(pollSvc))
	api.GET("/health", healthHandler(eventLog, registry))
	if archiveStore != nil {
		api.GET("/reports/events", reportsHandler(archiveStore))
	}

	return &Server{e: e}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
