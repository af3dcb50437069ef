package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/and161185/panel-auth/internal/authctx"
	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/model"
	"github.com/and161185/panel-auth/internal/service"
)

// AuthHTTP serves the /api/auth endpoints.
type AuthHTTP struct {
	Sessions service.SessionService
	Log      *zap.Logger
}

func requestMeta(c echo.Context) model.RequestMeta {
	return model.RequestMeta{UserAgent: c.Request().UserAgent(), IP: c.RealIP()}
}

// Register creates an account; tokens are issued only by Login.
func (h *AuthHTTP) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return errs.Validation("invalid body")
	}
	u, err := h.Sessions.Register(c.Request().Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Roles:    req.Roles,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, registerResponse{ID: u.ID, Email: u.Email, FullName: u.FullName})
}

// Login returns the token pair and the public user.
func (h *AuthHTTP) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return errs.Validation("invalid body")
	}
	res, err := h.Sessions.Login(c.Request().Context(), req.Email, req.Password, requestMeta(c))
	if err != nil {
		return err
	}
	out := toPairResponse(res.Tokens)
	out.User = toUserDTO(res.User)
	return c.JSON(http.StatusOK, out)
}

// Refresh rotates the refresh token.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return errs.Validation("invalid body")
	}
	pair, err := h.Sessions.Refresh(c.Request().Context(), req.RefreshToken, requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPairResponse(pair))
}

// Logout always answers {ok:true}; step failures are only logged.
func (h *AuthHTTP) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		h.Log.Debug("logout: unreadable body", zap.Error(err))
	}
	bearer, _ := bearerToken(c)
	res := h.Sessions.Logout(c.Request().Context(), bearer, req.RefreshToken)
	for _, err := range res.Errs {
		h.Log.Warn("logout step failed", zap.Error(err))
	}
	return c.JSON(http.StatusOK, okResponse{OK: true})
}

// Me returns the caller's identity.
func (h *AuthHTTP) Me(c echo.Context) error {
	id, ok := authctx.IdentityFromCtx(c.Request().Context())
	if !ok {
		return errs.ErrUnauthorized
	}
	return c.JSON(http.StatusOK, toIdentityDTO(id))
}

// AdminPing is a role-gated liveness probe for admins.
func AdminPing(c echo.Context) error {
	id, ok := authctx.IdentityFromCtx(c.Request().Context())
	if !ok {
		return errs.ErrUnauthorized
	}
	return c.JSON(http.StatusOK, okResponse{OK: true, By: toIdentityDTO(id)})
}

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health answers {ok:true} when the store is reachable.
func Health(p Pinger, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p != nil {
			if err := p.Ping(c.Request().Context()); err != nil {
				log.Warn("health: store unreachable", zap.Error(err))
				return c.JSON(http.StatusServiceUnavailable, okResponse{OK: false})
			}
		}
		return c.JSON(http.StatusOK, okResponse{OK: true})
	}
}
