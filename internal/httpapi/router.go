// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/accountd/internal/observability"
)

// DefaultBasePath is the prefix the account routes are mounted under.
const DefaultBasePath = "/api/v1/users"

const tracerName = "github.com/holomush/accountd/internal/httpapi"

type routerConfig struct {
	basePath string
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// Option configures NewRouter.
type Option func(*routerConfig)

// WithBasePath mounts the account routes under path.
func WithBasePath(path string) Option {
	return func(c *routerConfig) {
		c.basePath = path
	}
}

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *routerConfig) {
		c.logger = logger
	}
}

// WithMetrics records request and auth event metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *routerConfig) {
		c.metrics = m
	}
}

// WithTracer sets the tracer for request spans. The default comes from the
// global OpenTelemetry provider, which is a no-op unless one is installed.
func WithTracer(t trace.Tracer) Option {
	return func(c *routerConfig) {
		c.tracer = t
	}
}

// NewRouter builds the account HTTP API. Gated routes go through auth.
//
//	POST {base}/register
//	POST {base}/login
//	POST {base}/forgetPassword
//	POST {base}/resetPassword/{tokenId}
//	POST {base}/changePassword   (gated)
//	GET  {base}/me               (gated)
//	POST {base}/logout           (gated)
func NewRouter(svc AccountService, auth *Authenticator, opts ...Option) (http.Handler, error) {
	if svc == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("account service is required")
	}
	if auth == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("authenticator is required")
	}

	cfg := routerConfig{
		basePath: DefaultBasePath,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}

	rv, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	h := &handlers{svc: svc, validate: rv, metrics: cfg.metrics, logger: cfg.logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(traceRequests(cfg.tracer))
	r.Use(observeRequests(cfg.logger, cfg.metrics))
	r.Use(middleware.Recoverer)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Route(cfg.basePath, func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/forgetPassword", h.forgotPassword)
		r.Post("/resetPassword/{tokenId}", h.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Post("/changePassword", h.changePassword)
			r.Get("/me", h.me)
			r.Post("/logout", h.logout)
		})
	})

	return r, nil
}
