// Package httpserver exposes the session service over HTTP with echo.
package httpserver

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/panel-auth/internal/metrics"
	"github.com/and161185/panel-auth/internal/model"
	"github.com/and161185/panel-auth/internal/service"
)

// Guard resolves a bearer token to an identity holding one of required roles.
type Guard interface {
	Authenticate(ctx context.Context, bearer string, required ...string) (model.Identity, error)
}

// Deps are the collaborators of the HTTP server. Store, Metrics and Gatherer may be nil.
type Deps struct {
	Sessions service.SessionService
	Store    Pinger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// New builds the echo instance with middleware and routes.
func New(d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = echo.ExtractIPDirect()
	e.HTTPErrorHandler = errorHandler(d.Log)
	e.Use(requestLogger(d.Log, d.Metrics), recoverer(d.Log))

	Register(e, d)
	return e
}

// Register mounts all routes on e.
func Register(e *echo.Echo, d Deps) {
	auth := &AuthHTTP{Sessions: d.Sessions, Log: d.Log}

	api := e.Group("/api")
	api.GET("/health", Health(d.Store, d.Log))

	api.POST("/auth/register", auth.Register)
	api.POST("/auth/login", auth.Login)
	api.POST("/auth/refresh", auth.Refresh)
	api.POST("/auth/logout", auth.Logout)
	api.GET("/auth/me", auth.Me, RequireAuth(d.Sessions))

	admin := api.Group("/admin", RequireAuth(d.Sessions, "admin"))
	admin.GET("/ping", AdminPing)

	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
}
