package httpserver

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/and161185/panel-auth/internal/authctx"
	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/metrics"
)

// RequireAuth admits requests with a valid, non-blacklisted bearer holding one of roles.
// The identity is stored in the request context.
func RequireAuth(guard Guard, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, ok := bearerToken(c)
			if !ok {
				return errs.ErrUnauthorized
			}
			req := c.Request()
			id, err := guard.Authenticate(req.Context(), tok, roles...)
			if err != nil {
				return err
			}
			c.SetRequest(req.WithContext(authctx.WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}

// bearerToken extracts "Authorization: Bearer <token>".
func bearerToken(c echo.Context) (string, bool) {
	v := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(v[7:])
	return t, t != ""
}

// requestLogger logs one line per request without payloads and feeds the duration histogram.
func requestLogger(log *zap.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("http",
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("dur", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			)
			m.ObserveRequest(v.Method, v.RoutePath, strconv.Itoa(v.Status), v.Latency.Seconds())
			return nil
		},
	})
}

// recoverer turns panics into 500 responses and logs the stack.
func recoverer(log *zap.Logger) echo.MiddlewareFunc {
	return middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error("panic",
				zap.Error(err),
				zap.ByteString("stack", stack),
				zap.String("path", c.Request().URL.Path),
			)
			return err
		},
	})
}
