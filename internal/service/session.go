// Package service contains the session service: registration, login, token
// refresh with rotation, logout and bearer authentication.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/panel-auth/internal/crypto"
	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/limiter"
	"github.com/and161185/panel-auth/internal/metrics"
	"github.com/and161185/panel-auth/internal/model"
	"github.com/and161185/panel-auth/internal/repository"
	"github.com/and161185/panel-auth/internal/token"
)

// bcryptMaxInput is the longest password bcrypt accepts.
const bcryptMaxInput = 72

// SessionService defines authentication and session lifecycle operations.
type SessionService interface {
	// Register creates an account. It never issues tokens.
	Register(ctx context.Context, in RegisterInput) (model.PublicUser, error)
	// Login checks credentials and issues an access/refresh token pair.
	Login(ctx context.Context, email, password string, meta model.RequestMeta) (model.LoginResult, error)
	// Refresh consumes a refresh token and issues a new pair.
	Refresh(ctx context.Context, rawRefresh string, meta model.RequestMeta) (model.TokenPair, error)
	// Logout revokes what it can and never fails.
	Logout(ctx context.Context, bearer, rawRefresh string) LogoutResult
	// Authenticate resolves a bearer token to an identity holding one of required roles.
	Authenticate(ctx context.Context, bearer string, required ...string) (model.Identity, error)
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Roles    []string
}

// LogoutResult reports what a logout achieved.
type LogoutResult struct {
	AccessRevoked  bool
	RefreshRevoked bool
	Errs           []error
}

// Deps are the collaborators of SessionServiceImpl. Limiter, Metrics and Log may be nil.
type Deps struct {
	Users     repository.UserRepository
	Refresh   *RefreshTokenStore
	Blacklist repository.BlacklistRepository
	Codec     *token.Codec
	Hasher    pkgcrypto.Hasher
	Limiter   limiter.Limiter
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

// SessionServiceImpl implements SessionService.
type SessionServiceImpl struct {
	users     repository.UserRepository
	refresh   *RefreshTokenStore
	blacklist repository.BlacklistRepository
	codec     *token.Codec
	hasher    pkgcrypto.Hasher
	lim       limiter.Limiter
	m         *metrics.Metrics
	log       *zap.Logger

	dummyOnce sync.Once
	dummy     string
}

var _ SessionService = (*SessionServiceImpl)(nil)

// NewSessionService constructs SessionService with required dependencies.
func NewSessionService(d Deps) *SessionServiceImpl {
	if d.Limiter == nil {
		d.Limiter = limiter.Noop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &SessionServiceImpl{
		users:     d.Users,
		refresh:   d.Refresh,
		blacklist: d.Blacklist,
		codec:     d.Codec,
		hasher:    d.Hasher,
		lim:       d.Limiter,
		m:         d.Metrics,
		log:       d.Log,
	}
}

// Register validates input, hashes the password and stores the user.
// Role assignment is best effort.
func (s *SessionServiceImpl) Register(ctx context.Context, in RegisterInput) (model.PublicUser, error) {
	u, err := s.register(ctx, in)
	switch {
	case err == nil:
		s.m.Register(metrics.ResultOK)
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrAlreadyExists):
		s.m.Register(metrics.ResultDenied)
	default:
		s.m.Register(metrics.ResultError)
	}
	return u, err
}

func (s *SessionServiceImpl) register(ctx context.Context, in RegisterInput) (model.PublicUser, error) {
	if in.Email == "" || in.Password == "" || in.FullName == "" {
		return model.PublicUser{}, errs.Validation("email, password, fullName are required")
	}
	if len(in.Password) > bcryptMaxInput {
		return model.PublicUser{}, errs.Validation("password must be at most 72 bytes")
	}

	exists, err := s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return model.PublicUser{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return model.PublicUser{}, errs.ErrAlreadyExists
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		if pkgcrypto.IsTooLong(err) {
			return model.PublicUser{}, errs.Validation("password must be at most 72 bytes")
		}
		return model.PublicUser{}, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{Email: in.Email, PasswordHash: digest, FullName: in.FullName, IsActive: true}
	if _, err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return model.PublicUser{}, errs.ErrAlreadyExists
		}
		return model.PublicUser{}, fmt.Errorf("create user: %w", err)
	}

	if len(in.Roles) > 0 {
		if err := s.users.AssignRoles(ctx, u.ID, in.Roles); err != nil {
			s.log.Warn("assign roles", zap.Int64("user_id", u.ID), zap.Strings("roles", in.Roles), zap.Error(err))
		}
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID))
	return u.Public(), nil
}

// Login authenticates with rate limiting by (email, ip). Unknown email,
// inactive account and wrong password are indistinguishable.
func (s *SessionServiceImpl) Login(
	ctx context.Context, email, password string, meta model.RequestMeta,
) (model.LoginResult, error) {
	if email == "" || password == "" {
		s.m.Login(metrics.ResultDenied)
		return model.LoginResult{}, errs.Validation("email and password are required")
	}
	ipHash := limiter.HashIP(meta.IP)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		s.m.Login(metrics.ResultError)
		return model.LoginResult{}, fmt.Errorf("limiter: %w", err)
	}
	if !allowed {
		s.m.Login(metrics.ResultRateLimited)
		return model.LoginResult{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		s.m.Login(metrics.ResultError)
		return model.LoginResult{}, fmt.Errorf("load user: %w", err)
	}
	if !s.checkPassword(u, password) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr != nil {
			s.log.Warn("limiter failure record", zap.Error(ferr))
		} else if blocked {
			s.m.Login(metrics.ResultRateLimited)
			return model.LoginResult{}, errs.ErrRateLimited
		}
		s.m.Login(metrics.ResultDenied)
		return model.LoginResult{}, errs.ErrInvalidCredentials
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("limiter reset", zap.Error(err))
	}

	pair, err := s.issuePair(ctx, *u, meta)
	if err != nil {
		s.m.Login(metrics.ResultError)
		return model.LoginResult{}, err
	}
	s.m.Login(metrics.ResultOK)
	return model.LoginResult{Tokens: pair, User: u.Public()}, nil
}

// checkPassword always runs one bcrypt comparison, also for unknown users.
func (s *SessionServiceImpl) checkPassword(u *model.User, password string) bool {
	if u == nil {
		s.hasher.Verify(password, s.dummyDigest())
		return false
	}
	ok := s.hasher.Verify(password, u.PasswordHash)
	return ok && u.IsActive
}

func (s *SessionServiceImpl) dummyDigest() string {
	s.dummyOnce.Do(func() {
		raw, err := pkgcrypto.RandomToken()
		if err != nil {
			raw = "dummy"
		}
		if d, err := s.hasher.Hash(raw); err == nil {
			s.dummy = d
		}
	})
	return s.dummy
}

func (s *SessionServiceImpl) issuePair(ctx context.Context, u model.User, meta model.RequestMeta) (model.TokenPair, error) {
	access, err := s.codec.Mint(u, 0)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("mint access token: %w", err)
	}
	raw, err := pkgcrypto.RandomToken()
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}
	rec, err := s.refresh.Issue(ctx, u.ID, raw, 0, meta)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{
		AccessToken:           access.Token,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshToken:          raw,
		RefreshTokenExpiresAt: rec.ExpiresAt,
	}, nil
}

// Refresh exchanges a live refresh token for a new pair. The presented
// token is revoked; replaying it fails with errs.ErrInvalidRefreshToken.
func (s *SessionServiceImpl) Refresh(
	ctx context.Context, rawRefresh string, meta model.RequestMeta,
) (model.TokenPair, error) {
	pair, err := s.rotate(ctx, rawRefresh, meta)
	switch {
	case err == nil:
		s.m.Refresh(metrics.ResultOK)
	case errors.Is(err, errs.ErrInvalidRefreshToken), errors.Is(err, errs.ErrValidation):
		s.m.Refresh(metrics.ResultDenied)
	default:
		s.m.Refresh(metrics.ResultError)
	}
	return pair, err
}

func (s *SessionServiceImpl) rotate(ctx context.Context, rawRefresh string, meta model.RequestMeta) (model.TokenPair, error) {
	if rawRefresh == "" {
		return model.TokenPair{}, errs.Validation("refreshToken is required")
	}
	rec, err := s.refresh.FindUsable(ctx, rawRefresh)
	if errors.Is(err, errs.ErrNotFound) {
		return model.TokenPair{}, errs.ErrInvalidRefreshToken
	}
	if err != nil {
		return model.TokenPair{}, err
	}

	u, err := s.users.GetByID(ctx, rec.UserID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.TokenPair{}, errs.ErrInvalidRefreshToken
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		return model.TokenPair{}, errs.ErrInvalidRefreshToken
	}

	access, err := s.codec.Mint(*u, 0)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("mint access token: %w", err)
	}
	raw, err := pkgcrypto.RandomToken()
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}
	next, err := s.refresh.Rotate(ctx, rec.ID, u.ID, raw, meta)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidRefreshToken) {
			s.log.Info("refresh token replay rejected", zap.Int64("user_id", u.ID), zap.Int64("token_id", rec.ID))
		}
		return model.TokenPair{}, err
	}
	return model.TokenPair{
		AccessToken:           access.Token,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshToken:          raw,
		RefreshTokenExpiresAt: next.ExpiresAt,
	}, nil
}

// Logout blacklists the bearer's jti until its expiry and revokes the
// refresh token. Each step is attempted independently.
func (s *SessionServiceImpl) Logout(ctx context.Context, bearer, rawRefresh string) LogoutResult {
	var res LogoutResult

	if bearer != "" {
		claims, err := s.codec.Verify(bearer)
		switch {
		case err != nil:
			s.m.Logout("access", metrics.ResultDenied)
		default:
			if err := s.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				s.log.Warn("logout: blacklist access token", zap.Error(err))
				s.m.Logout("access", metrics.ResultError)
				res.Errs = append(res.Errs, fmt.Errorf("blacklist: %w", err))
			} else {
				s.m.Logout("access", metrics.ResultOK)
				res.AccessRevoked = true
			}
		}
	}

	if rawRefresh != "" {
		rec, err := s.refresh.FindUsable(ctx, rawRefresh)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			s.m.Logout("refresh", metrics.ResultDenied)
		case err != nil:
			s.log.Warn("logout: find refresh token", zap.Error(err))
			s.m.Logout("refresh", metrics.ResultError)
			res.Errs = append(res.Errs, err)
		default:
			if err := s.refresh.Revoke(ctx, rec.ID); err != nil {
				s.log.Warn("logout: revoke refresh token", zap.Int64("token_id", rec.ID), zap.Error(err))
				s.m.Logout("refresh", metrics.ResultError)
				res.Errs = append(res.Errs, fmt.Errorf("revoke: %w", err))
			} else {
				s.m.Logout("refresh", metrics.ResultOK)
				res.RefreshRevoked = true
			}
		}
	}
	return res
}

// Authenticate verifies the bearer, rejects blacklisted jtis and checks roles.
// Blacklist lookup failures are returned as internal errors.
func (s *SessionServiceImpl) Authenticate(ctx context.Context, bearer string, required ...string) (model.Identity, error) {
	id, err := s.authenticate(ctx, bearer, required)
	switch {
	case err == nil:
		s.m.Guard(metrics.ResultOK)
	case errors.Is(err, errs.ErrUnauthorized):
		s.m.Guard(metrics.ResultDenied)
	case errors.Is(err, errs.ErrForbidden):
		s.m.Guard(metrics.ResultForbidden)
	default:
		s.m.Guard(metrics.ResultError)
	}
	return id, err
}

func (s *SessionServiceImpl) authenticate(ctx context.Context, bearer string, required []string) (model.Identity, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return model.Identity{}, errs.ErrUnauthorized
	}
	claims, err := s.codec.Verify(bearer)
	if err != nil {
		return model.Identity{}, errs.ErrUnauthorized
	}
	id, err := claims.Identity()
	if err != nil {
		return model.Identity{}, errs.ErrUnauthorized
	}
	revoked, err := s.blacklist.Exists(ctx, id.JTI)
	if err != nil {
		return model.Identity{}, fmt.Errorf("blacklist lookup: %w", err)
	}
	if revoked {
		return model.Identity{}, errs.ErrUnauthorized
	}
	if !id.HasAnyRole(required...) {
		return model.Identity{}, errs.ErrForbidden
	}
	return id, nil
}
