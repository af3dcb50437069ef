package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	pkgcrypto "github.com/and161185/panel-auth/internal/crypto"
	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/metrics"
	"github.com/and161185/panel-auth/internal/repository/memstore"
	"github.com/and161185/panel-auth/internal/service"
	"github.com/and161185/panel-auth/internal/token"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type env struct {
	e     *echo.Echo
	store *memstore.Store
	reg   *prometheus.Registry
}

func newEnv(t *testing.T, pinger Pinger) *env {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := memstore.New()
	hasher := pkgcrypto.NewBcrypt(bcrypt.MinCost)
	codec, err := token.NewCodec([]byte("http-test-secret"), 15*time.Minute)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	svc := service.NewSessionService(service.Deps{
		Users:     store.Users(),
		Refresh:   service.NewRefreshTokenStore(store.RefreshTokens(), hasher, service.RefreshStoreConfig{}, log),
		Blacklist: store.Blacklist(),
		Codec:     codec,
		Hasher:    hasher,
		Metrics:   m,
		Log:       log,
	})
	e := New(Deps{Sessions: svc, Store: pinger, Metrics: m, Gatherer: reg, Log: log})
	return &env{e: e, store: store, reg: reg}
}

func (v *env) do(t *testing.T, method, path, body, bearer string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	req.Header.Set("User-Agent", "http-test")
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (v *env) registerAndLogin(t *testing.T, email string, roles ...string) map[string]any {
	t.Helper()
	rolesJSON, _ := json.Marshal(roles)
	rec, _ := v.do(t, http.MethodPost, "/api/auth/register",
		`{"email":"`+email+`","password":"pa55word","fullName":"Test","roles":`+string(rolesJSON)+`}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body := v.do(t, http.MethodPost, "/api/auth/login", `{"email":"`+email+`","password":"pa55word"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return body
}

func TestScenario_RegisterLoginRefreshReplayLogout(t *testing.T) {
	t.Parallel()
	v := newEnv(t, nil)

	rec, body := v.do(t, http.MethodPost, "/api/auth/register",
		`{"email":"alice@example.com","password":"pa55word","fullName":"Alice"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, "Alice", body["fullName"])
	assert.NotZero(t, body["id"])
	assert.NotContains(t, body, "accessToken")

	rec, login := v.do(t, http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"pa55word"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	access := login["accessToken"].(string)
	refresh := login["refreshToken"].(string)
	exp, err := time.Parse(time.RFC3339, login["accessTokenExpiresAt"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, time.Minute)
	assert.True(t, strings.HasSuffix(login["refreshTokenExpiresAt"].(string), "Z"))
	user := login["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, []any{}, user["roles"])

	rec, me := v.do(t, http.MethodGet, "/api/auth/me", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", me["email"])

	rec, pair := v.do(t, http.MethodPost, "/api/auth/refresh", `{"refreshToken":"`+refresh+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, refresh, pair["refreshToken"])
	assert.NotContains(t, pair, "user")

	rec, replay := v.do(t, http.MethodPost, "/api/auth/refresh", `{"refreshToken":"`+refresh+`"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", replay["error"])

	newAccess := pair["accessToken"].(string)
	rec, out := v.do(t, http.MethodPost, "/api/auth/logout", `{"refreshToken":"`+pair["refreshToken"].(string)+`"}`, newAccess)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["ok"])

	rec, _ = v.do(t, http.MethodGet, "/api/auth/me", "", newAccess)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = v.do(t, http.MethodPost, "/api/auth/refresh", `{"refreshToken":"`+pair["refreshToken"].(string)+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the first access token was never blacklisted and stays valid until it expires
	rec, _ = v.do(t, http.MethodGet, "/api/auth/me", "", access)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_FailuresShareOneResponse(t *testing.T) {
	t.Parallel()
	v := newEnv(t, nil)
	body := v.registerAndLogin(t, "active@example.com")
	require.NotEmpty(t, body["accessToken"])

	rec, _ := v.do(t, http.MethodPost, "/api/auth/register",
		`{"email":"off@example.com","password":"pa55word","fullName":"Off"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	u, err := v.store.Users().GetByEmail(context.Background(), "off@example.com")
	require.NoError(t, err)
	v.store.SetActive(u.ID, false)

	var bodies []string
	for _, payload := range []string{
		`{"email":"ghost@example.com","password":"pa55word"}`,
		`{"email":"off@example.com","password":"pa55word"}`,
		`{"email":"active@example.com","password":"nope"}`,
	} {
		rec, _ := v.do(t, http.MethodPost, "/api/auth/login", payload, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[0], bodies[2])
	assert.JSONEq(t, `{"error":"unauthorized"}`, bodies[0])
}

func TestRegister_Errors(t *testing.T) {
	t.Parallel()
	v := newEnv(t, nil)

	rec, body := v.do(t, http.MethodPost, "/api/auth/register", `{"email":"a@b.c"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email, password, fullName are required", body["error"])

	rec, _ = v.do(t, http.MethodPost, "/api/auth/register", `{"email":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ok := `{"email":"a@b.c","password":"pw","fullName":"A"}`
	rec, _ = v.do(t, http.MethodPost, "/api/auth/register", ok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = v.do(t, http.MethodPost, "/api/auth/register", ok, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email already registered", body["error"])
}

func TestLoginAndRefresh_MissingFields(t *testing.T) {
	t.Parallel()
	v := newEnv(t, nil)

	rec, body := v.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.c"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email and password are required", body["error"])

	rec, body = v.do(t, http.MethodPost, "/api/auth/refresh", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "refreshToken is required", body["error"])
}

func TestAdminPing_RoleGate(t *testing.T) {
	t.Parallel()
	v := newEnv(t, nil)
	admin := v.registerAndLogin(t, "root@example.com", "admin")
	plain := v.registerAndLogin(t, "user@example.com")

	rec, body := v.do(t, http.MethodGet, "/api/admin/ping", "", admin["accessToken"].(string))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	by := body["by"].(map[string]any)
	assert.Equal(t, "root@example.com", by["email"])
	assert.Equal(t, []any{"admin"}, by["roles"])

	rec, body = v.do(t, http.MethodGet, "/api/admin/ping", "", plain["accessToken"].(string))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", body["error"])

	rec, body = v.do(t, http.MethodGet, "/api/admin/ping", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["error"])

	rec, _ = v.do(t, http.MethodGet, "/api/admin/ping", "", "not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_AlwaysOK(t *testing.T) {
	t.Parallel()
	v := newEnv(t, nil)

	for _, c := range []struct{ body, bearer string }{
		{"", ""},
		{`{"refreshToken":"unknown"}`, "garbage"},
		{`{not json`, ""},
	} {
		rec, out := v.do(t, http.MethodPost, "/api/auth/logout", c.body, c.bearer)
		require.Equal(t, http.StatusOK, rec.Code, c)
		assert.Equal(t, true, out["ok"])
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec, body := newEnv(t, fakePinger{}).do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])

	rec, body = newEnv(t, fakePinger{err: errors.New("down")}).do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["ok"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	v := newEnv(t, nil)
	v.registerAndLogin(t, "m@example.com")

	rec, _ := v.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `panel_auth_login_attempts_total{status="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "panel_auth_request_duration_seconds")
}

func TestErrors_UnknownRouteAndPanic(t *testing.T) {
	t.Parallel()
	v := newEnv(t, nil)
	v.e.GET("/api/boom", func(echo.Context) error { panic("boom") })
	v.e.GET("/api/broken", func(echo.Context) error { return errors.New("db password=hunter2") })
	v.e.GET("/api/misconfigured", func(echo.Context) error { return errs.ErrConfiguration })

	rec, body := v.do(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, body["error"])

	for _, path := range []string{"/api/boom", "/api/broken", "/api/misconfigured"} {
		rec, body = v.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.Equal(t, "internal error", body["error"], path)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		code int
	}{
		{errs.Validation("x"), http.StatusBadRequest},
		{errs.ErrValidation, http.StatusBadRequest},
		{errs.ErrAlreadyExists, http.StatusConflict},
		{errs.ErrInvalidCredentials, http.StatusUnauthorized},
		{errs.ErrInvalidRefreshToken, http.StatusUnauthorized},
		{errs.ErrInvalidToken, http.StatusUnauthorized},
		{errs.ErrUnauthorized, http.StatusUnauthorized},
		{errs.ErrForbidden, http.StatusForbidden},
		{errs.ErrRateLimited, http.StatusTooManyRequests},
		{errs.ErrConfiguration, http.StatusInternalServerError},
		{echo.ErrMethodNotAllowed, http.StatusMethodNotAllowed},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		code, _ := statusFor(c.err)
		assert.Equal(t, c.code, code, c.err.Error())
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	e := echo.New()

	for header, want := range map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer ":      "",
		"":             "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, header)
		got, ok := bearerToken(e.NewContext(req, httptest.NewRecorder()))
		assert.Equal(t, want, got, header)
		assert.Equal(t, want != "", ok, header)
	}
}
