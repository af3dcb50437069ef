package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/panel-auth/internal/crypto"
	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/model"
	"github.com/and161185/panel-auth/internal/repository"
)

// Refresh store defaults.
const (
	DefaultRefreshTTL     = 7 * 24 * time.Hour
	DefaultMaxLivePerUser = 10
	DefaultScanLimit      = 1000
)

// RefreshTokenStore issues, finds and rotates refresh tokens. Only bcrypt
// digests of raw tokens reach the repository.
type RefreshTokenStore struct {
	repo      repository.RefreshTokenRepository
	hasher    pkgcrypto.Hasher
	ttl       time.Duration
	maxLive   int
	scanLimit int
	now       func() time.Time
	log       *zap.Logger
}

// RefreshStoreConfig tunes a RefreshTokenStore. Zero values mean defaults;
// a negative MaxLivePerUser disables the per-user cap.
type RefreshStoreConfig struct {
	TTL            time.Duration
	MaxLivePerUser int
	ScanLimit      int
}

// NewRefreshTokenStore constructs a store over repo.
func NewRefreshTokenStore(
	repo repository.RefreshTokenRepository, hasher pkgcrypto.Hasher, cfg RefreshStoreConfig, log *zap.Logger,
) *RefreshTokenStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRefreshTTL
	}
	if cfg.MaxLivePerUser == 0 {
		cfg.MaxLivePerUser = DefaultMaxLivePerUser
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = DefaultScanLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RefreshTokenStore{
		repo:      repo,
		hasher:    hasher,
		ttl:       cfg.TTL,
		maxLive:   cfg.MaxLivePerUser,
		scanLimit: cfg.ScanLimit,
		now:       time.Now,
		log:       log,
	}
}

// TTL returns the default refresh token lifetime.
func (s *RefreshTokenStore) TTL() time.Duration { return s.ttl }

// Issue persists a digest of raw for userID and enforces the per-user cap.
func (s *RefreshTokenStore) Issue(
	ctx context.Context, userID int64, raw string, ttl time.Duration, meta model.RequestMeta,
) (*model.RefreshToken, error) {
	rec, err := s.newRecord(userID, raw, ttl, meta)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	s.enforceCap(ctx, userID)
	return rec, nil
}

// FindUsable returns the live row whose digest matches raw, or errs.ErrNotFound.
func (s *RefreshTokenStore) FindUsable(ctx context.Context, raw string) (*model.RefreshToken, error) {
	if raw == "" {
		return nil, errs.ErrNotFound
	}
	rows, err := s.repo.ListUsable(ctx, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	for i := range rows {
		if s.hasher.Verify(raw, rows[i].TokenHash) {
			return &rows[i], nil
		}
	}
	return nil, errs.ErrNotFound
}

// Rotate revokes oldID and stores a digest of raw for the same user in one step.
// Fails with errs.ErrInvalidRefreshToken when oldID was already consumed.
func (s *RefreshTokenStore) Rotate(
	ctx context.Context, oldID, userID int64, raw string, meta model.RequestMeta,
) (*model.RefreshToken, error) {
	next, err := s.newRecord(userID, raw, 0, meta)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Rotate(ctx, oldID, next); err != nil {
		return nil, err
	}
	s.enforceCap(ctx, next.UserID)
	return next, nil
}

// Revoke marks a row revoked; revoking twice is harmless.
func (s *RefreshTokenStore) Revoke(ctx context.Context, id int64) error {
	return s.repo.Revoke(ctx, id)
}

func (s *RefreshTokenStore) newRecord(
	userID int64, raw string, ttl time.Duration, meta model.RequestMeta,
) (*model.RefreshToken, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	digest, err := s.hasher.Hash(raw)
	if err != nil {
		return nil, fmt.Errorf("hash refresh token: %w", err)
	}
	return &model.RefreshToken{
		UserID:    userID,
		TokenHash: digest,
		Type:      model.TokenTypeRefresh,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		ExpiresAt: s.now().Add(ttl).UTC().Truncate(time.Second),
	}, nil
}

// enforceCap is best effort: the new token is already persisted.
func (s *RefreshTokenStore) enforceCap(ctx context.Context, userID int64) {
	if s.maxLive < 0 {
		return
	}
	n, err := s.repo.RevokeExcess(ctx, userID, s.maxLive)
	if err != nil {
		s.log.Warn("revoke excess refresh tokens", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("revoked excess refresh tokens", zap.Int64("user_id", userID), zap.Int64("count", n))
	}
}
