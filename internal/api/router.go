package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/papemosque/community-api/internal/metrics"
)

// ProgressFeed is the websocket endpoint for dispatch progress.
type ProgressFeed interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

// Deps are the collaborators behind the HTTP API. Breaker, Limiter, Feed
// and DB may be nil.
type Deps struct {
	Subscribers SubscriberStore
	EmailLogs   EmailLogStore
	Content     ContentStore
	Dispatcher  Dispatcher
	Breaker     CircuitStater
	Provider    string
	Limiter     Limiter
	Feed        ProgressFeed
	DB          Pinger
	Logger      *zap.Logger
}

type RouterConfig struct {
	SiteURL        string
	AllowedOrigin  string
	AdminJWTSecret string
	Version        string

	// TrustProxyHeaders takes the client IP from X-Forwarded-For/X-Real-IP.
	// Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps Deps, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware(cfg.AllowedOrigin))

	subHandler := NewSubscriberHandler(deps.Subscribers, deps.Logger)
	unsubHandler := NewUnsubscribeHandler(deps.Subscribers, cfg.SiteURL, deps.Logger)
	sendHandler := NewSendHandler(deps.Dispatcher, deps.Logger)
	contentHandler := NewContentHandler(deps.Content, deps.Logger)
	dashHandler := NewDashboardHandler(deps.Subscribers, deps.EmailLogs, deps.Breaker, deps.Provider, deps.Feed, deps.Logger)

	if deps.Feed != nil {
		// progress events carry subscriber emails
		r.With(requireAdminFrom(cfg.AdminJWTSecret, upgradeToken)).Get("/ws", deps.Feed.HandleWebSocket)
	}
	r.Handle("/metrics", metrics.Handler())

	r.Get("/api/v1/health", HealthHandler(cfg.Version, deps.DB))

	r.Route("/api", func(r chi.Router) {
		// public
		r.With(rateLimit(deps.Limiter, "subscribe")).Post("/subscribe", subHandler.Subscribe)
		r.Route("/unsubscribe", func(r chi.Router) {
			r.Use(rateLimit(deps.Limiter, "unsubscribe"))
			r.Get("/", unsubHandler.Link)
			r.Post("/", unsubHandler.OneClick)
		})
		r.Get("/prayer/today", contentHandler.PrayerToday)
		r.Get("/donation-funds", contentHandler.ActiveFunds)

		// admin
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(cfg.AdminJWTSecret))

			r.Post("/send", sendHandler.Single)
			r.Post("/send/bulk", sendHandler.Bulk)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/dashboard", dashHandler.Overview)
				r.Get("/email-logs", dashHandler.EmailLogs)

				r.Route("/subscribers", func(r chi.Router) {
					r.Get("/", subHandler.List)
					r.Patch("/{id}", subHandler.Update)
					r.Delete("/{id}", subHandler.Delete)
				})

				r.Route("/donation-funds", func(r chi.Router) {
					r.Get("/", contentHandler.AllFunds)
					r.Post("/bulk", contentHandler.BulkSetFundActive)
					r.Patch("/{id}", contentHandler.SetFundActive)
				})

				r.Get("/donations/stats", contentHandler.DonationStats)
			})
		})
	})

	return r
}
