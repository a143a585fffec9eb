// Package server provides the service-site HTTP server.
package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/brightline-electric/servicesite/internal/auth"
	"github.com/brightline-electric/servicesite/internal/catalog"
	"github.com/brightline-electric/servicesite/internal/config"
	"github.com/brightline-electric/servicesite/internal/httputil"
	"github.com/brightline-electric/servicesite/internal/metrics"
	"github.com/brightline-electric/servicesite/internal/store"
)

const jsonBodyLimit = 1 << 20

// Deps are the collaborators the handlers call into.
type Deps struct {
	Store   store.Store
	Manager *catalog.Manager
	Query   *catalog.Query
	Auth    *auth.Authenticator
}

// Server wraps HTTP routes and dependencies.
type Server struct {
	store       store.Store
	manager     *catalog.Manager
	query       *catalog.Query
	authn       *auth.Authenticator
	limiter     *auth.LoginLimiter
	metrics     *metrics.Recorder
	cfg         config.Config
	version     string
	commit      string
	buildDate   string
	openapiSpec []byte
	logger      zerolog.Logger
	router      chi.Router
}

// Option configures server construction.
type Option func(*Server)

// WithOpenAPISpec sets the embedded OpenAPI bytes.
func WithOpenAPISpec(spec []byte) Option {
	return func(s *Server) {
		s.openapiSpec = spec
	}
}

// WithMetrics exposes rec on /metrics when metrics are enabled.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Server) {
		s.metrics = rec
	}
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New constructs the service-site server.
func New(deps Deps, cfg config.Config, version, commit, buildDate string, opts ...Option) *Server {
	s := &Server{
		store:     deps.Store,
		manager:   deps.Manager,
		query:     deps.Query,
		authn:     deps.Auth,
		limiter:   auth.NewLoginLimiter(cfg.LoginRate),
		cfg:       cfg,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	if s.cfg.TracesEnabled {
		r.Use(otelhttp.NewMiddleware("servicesite"))
	}
	if s.cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(httputil.RequestLogger(s.logger))
	r.Use(httputil.Recoverer)
	r.Use(httputil.SecureHeaders)

	r.Get("/healthz", handleHealthz)

	r.Group(func(r chi.Router) {
		r.Method(http.MethodGet, "/health", httputil.HealthHandler())
		r.Method(http.MethodGet, "/readiness", httputil.ReadinessHandler(s.store.Ping))
		r.Method(http.MethodGet, "/version", httputil.VersionHandler(s.version, s.commit, s.buildDate))
		if s.cfg.MetricsEnabled && s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
		r.Method(http.MethodGet, "/api/openapi.yaml", httputil.OpenAPIHandler(s.openapiSpec))
	})

	prefix := s.imagesPrefix()
	r.Method(http.MethodGet, prefix+"/*", imagesHandler(s.cfg.ImagesDir, prefix))

	r.Group(func(r chi.Router) {
		r.Use(httputil.NoStore)
		r.Use(httputil.BodyLimit(jsonBodyLimit))

		r.Get("/api/services", s.handleListServices)
		r.Get("/api/services/{id}", s.handleGetService)
		r.Get("/data/services.json", s.handleCatalogDocument)
		r.With(s.limiter.Middleware).Post("/api/admin-auth", s.handleLogin)
		r.With(s.limiter.Middleware).Post("/admin-auth", s.handleLogin)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(httputil.NoStore)
		r.Use(auth.RequireAdmin(s.authn, s.limiter))
		r.Use(httputil.BodyLimit(s.cfg.MaxUploadBytes))

		r.Post("/logout", s.handleLogout)

		r.Post("/add-service", s.handleAddService)
		r.Put("/update-service/{id}", s.handleUpdateService)
		r.Delete("/delete-service/{id}", s.handleDeleteService)

		r.Post("/services", s.handleAddService)
		r.Put("/services/{id}", s.handleUpdateService)
		r.Delete("/services/{id}", s.handleDeleteService)
		r.Delete("/services/{id}/images", s.handleDeleteImage)
	})

	return r
}

func (s *Server) imagesPrefix() string {
	prefix := "/" + strings.Trim(s.cfg.ImagesURLPrefix, "/")
	if prefix == "/" {
		return "/images"
	}
	return prefix
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

// imagesHandler serves stored photos. Directory listings are not exposed.
func imagesHandler(dir, prefix string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}
