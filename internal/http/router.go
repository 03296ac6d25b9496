package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/linkpulse/internal/auth"
	"github.com/roniherschmann/linkpulse/internal/config"
	"github.com/roniherschmann/linkpulse/internal/core"
	"github.com/roniherschmann/linkpulse/internal/metrics"
)

type Router struct {
	cfg          config.Config
	svc          *core.Service
	auth         *auth.Service
	shortenLimit *rateLimiter
	loginLimit   *rateLimiter
}

func NewRouter(cfg config.Config, svc *core.Service, authSvc *auth.Service) http.Handler {
	r := chi.NewRouter()
	// Logging middleware
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", clientIP(r)).
			Int("status", status).
			Int("size", size).
			Dur("duration", dur).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	rt := &Router{
		cfg:          cfg,
		svc:          svc,
		auth:         authSvc,
		shortenLimit: newRateLimiter(cfg.CreateRateRPS, cfg.CreateRateBurst),
		loginLimit:   newRateLimiter(cfg.LoginRateRPS, cfg.LoginRateBurst),
	}

	r.Get("/healthz", rt.handleHealth)
	r.Get("/readyz", rt.handleReady)

	// Metrics
	r.Get("/metrics", metrics.Handler)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(rt.loginLimit.Middleware).Post("/login", rt.handleLogin)
			r.Get("/2fa-status", rt.handleAuthStatus)
			r.Post("/setup-2fa", rt.handleSetup)
			r.Post("/verify-2fa", rt.handleVerify)
			r.With(rt.requireAuth).Post("/toggle-2fa-setup", rt.handleToggle)
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.requireAuth)
			r.With(rt.shortenLimit.Middleware).Post("/shorten", rt.handleShorten)
			r.Get("/recent", rt.handleRecent)

			r.Route("/stats/{slug}", func(r chi.Router) {
				r.Get("/", rt.handleLinkStats)
				r.Get("/clicks", rt.handleClicks)
				r.Get("/os", rt.handleOS)
				r.Get("/device", rt.handleDevice)
				r.Get("/referrer", rt.handleReferrer)
				r.Get("/country", rt.handleCountry)
				r.Get("/bots", rt.handleBots)
				r.Get("/traffic", rt.handleTraffic)
				r.Get("/users", rt.handleLinkUsers)
				r.Get("/users/{userId}/traffic", rt.handleLinkUserTraffic)
			})

			r.Get("/users", rt.handleUsers)
			r.Get("/users/{userId}/traffic", rt.handleUserTraffic)
			r.Get("/users/{userId}/links", rt.handleUserLinks)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, errorResp{Error: "Not found"}, http.StatusNotFound)
		})
	})

	// Redirect paths; reserved names and anything deeper fall through to the dashboard
	r.Get("/", rt.handleSPA)
	r.Get("/{slug}", rt.handleRedirect)
	r.Get("/{slug}/{userId}", rt.handleRedirect)
	r.NotFound(rt.handleSPA)

	return r
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type readyResp struct {
	Status string `json:"status"`
	Links  int64  `json:"links"`
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	n, err := rt.svc.Ready(r.Context())
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, readyResp{Status: "unavailable"}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, readyResp{Status: "ready", Links: n}, http.StatusOK)
}

// clientIP prefers proxy headers: Cloudflare, then X-Real-IP, then the first
// X-Forwarded-For hop, then the socket peer.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// baseURL is the configured public origin, or the one the request arrived on.
func (rt *Router) baseURL(r *http.Request) string {
	if rt.cfg.BaseURL != "" {
		return strings.TrimRight(rt.cfg.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
