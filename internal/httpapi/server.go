package httpapi

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

// Config shapes the HTTP surface.
type Config struct {
	// AllowedOrigins enables CORS for browser clients. Empty disables it.
	AllowedOrigins []string
	// AuthRate and AuthBurst bound requests per client IP on /auth routes.
	// A zero AuthRate disables throttling.
	AuthRate  rate.Limit
	AuthBurst int
	// RequestTimeout bounds every request. Zero leaves it unbounded.
	RequestTimeout time.Duration
	// Metrics, when set, is served at GET /metrics.
	Metrics http.Handler
	// SharedLimiter, when set, replaces the per-process buckets so that
	// every node behind a load balancer draws on one budget per client IP.
	SharedLimiter RequestLimiter
	// Ready, when set, backs GET /readyz.
	Ready func(r *http.Request) error
	// TrustedProxies lists the peer addresses or CIDR ranges whose
	// X-Forwarded-For and X-Real-IP headers are honoured. Empty means the
	// socket address is always the client address.
	TrustedProxies []string
}

// DefaultConfig allows 5 requests per second per IP with a burst of 10.
func DefaultConfig() Config {
	return Config{
		AuthRate:       rate.Limit(5),
		AuthBurst:      10,
		RequestTimeout: 30 * time.Second,
	}
}

// Server holds the handlers' dependencies.
type Server struct {
	engine   *authcore.Engine
	logger   *zap.Logger
	validate *validator.Validate
	limit    func(http.Handler) http.Handler
	realIP   func(http.Handler) http.Handler
	config   Config
}

// New builds the router. logger may be nil.
func New(engine *authcore.Engine, cfg Config, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   engine,
		logger:   logger.Named("http"),
		validate: newValidator(),
		config:   cfg,
	}
	s.realIP = trustedRealIP(parseTrustedProxies(cfg.TrustedProxies, s.logger))
	switch {
	case cfg.SharedLimiter != nil:
		s.limit = sharedLimit(cfg.SharedLimiter, s.logger)
	case cfg.AuthRate > 0:
		s.limit = newIPLimiter(cfg.AuthRate, cfg.AuthBurst, 10*time.Minute).middleware
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.realIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(clientIP)
	if s.config.RequestTimeout > 0 {
		r.Use(chimw.Timeout(s.config.RequestTimeout))
	}
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"Retry-After"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", s.ready)
	if s.config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.config.Metrics)
	}

	authn := middleware.RequireAuth(s.engine)
	admin := middleware.RequireRole(authcore.RoleAdmin)
	selfOrAdmin := middleware.RequireSelfOrRole(func(r *http.Request) string {
		return chi.URLParam(r, "id")
	}, authcore.RoleAdmin)

	r.Route("/auth", func(r chi.Router) {
		if s.limit != nil {
			r.Use(s.limit)
		}
		r.Post("/login", s.login)
		r.Post("/refresh", s.refresh)
		r.Post("/logout", s.logout)
		r.Post("/password/renew", s.renewPassword)

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Post("/logout-all", s.logoutAll)
			r.Put("/password", s.changePassword)
			r.Get("/me", s.me)
		})
	})

	r.Route("/accounts", func(r chi.Router) {
		if s.limit != nil {
			r.With(s.limit).Post("/", s.register)
		} else {
			r.Post("/", s.register)
		}

		r.Route("/{id}", func(r chi.Router) {
			r.Use(authn)
			r.With(selfOrAdmin).Get("/", s.getAccount)
			r.With(selfOrAdmin).Patch("/", s.updateAccount)
			r.With(admin).Delete("/", s.deactivateAccount)
			r.With(admin).Post("/unlock", s.unlockAccount)
			r.With(admin).Get("/history", s.accountHistory)
			r.With(admin).Get("/lockout", s.lockoutStatus)
		})
	})

	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.config.Ready != nil {
		if err := s.config.Ready(r); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

// clientIP copies the caller address into the request context so the
// Engine can attach it to security events. Forwarding headers have already
// been resolved for trusted proxies.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteHost(r)
		next.ServeHTTP(w, r.WithContext(authcore.WithClientIP(r.Context(), ip)))
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
