package repository

import (
	"context"
	"time"

	"github.com/and161185/panel-auth/internal/model"
)

// RefreshTokenRepository persists refresh token rows. Rows are revoked, never deleted.
type RefreshTokenRepository interface {
	// Create inserts t and fills its ID and CreatedAt.
	Create(ctx context.Context, t *model.RefreshToken) error
	// ListUsable returns live refresh rows, newest first, at most limit rows.
	ListUsable(ctx context.Context, limit int) ([]model.RefreshToken, error)
	// Rotate revokes the live row oldID and inserts next in one transaction.
	// Returns errs.ErrInvalidRefreshToken if oldID is no longer live.
	Rotate(ctx context.Context, oldID int64, next *model.RefreshToken) error
	// Revoke marks the row revoked; revoking a revoked row is a no-op.
	Revoke(ctx context.Context, id int64) error
	// RevokeExcess revokes the user's live rows beyond the newest keep rows.
	RevokeExcess(ctx context.Context, userID int64, keep int) (int64, error)
}

// BlacklistRepository is the access token revocation list keyed by jti.
type BlacklistRepository interface {
	// Add records jti as revoked until expiresAt; duplicates are ignored.
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	// Exists reports whether jti is blacklisted.
	Exists(ctx context.Context, jti string) (bool, error)
	// DeleteExpired removes entries whose token would have expired anyway.
	DeleteExpired(ctx context.Context) (int64, error)
}
