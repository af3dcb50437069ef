package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/and161185/panel-auth/internal/errs"
)

// statusFor maps an error to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	var ve *errs.ValidationError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Msg
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "email already registered"
	case errs.IsAuthFailure(err):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "too many attempts, try again later"
	case errors.As(err, &he) && he.Code < http.StatusInternalServerError:
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, msg
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// errorHandler renders every handler error as {"error": "..."}; 5xx detail goes to the log only.
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := statusFor(err)
		if code >= http.StatusInternalServerError {
			fields := []zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			}
			if errors.Is(err, errs.ErrConfiguration) {
				log.Error("server misconfigured", fields...)
			} else {
				log.Error("request failed", fields...)
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, errorResponse{Error: msg})
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}
