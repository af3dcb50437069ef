package postgres

import (
	"context"
	"time"
)

// BlacklistRepo implements BlacklistRepository using PostgreSQL.
type BlacklistRepo struct{ db *DB }

// NewBlacklistRepo constructs a blacklist repository.
func NewBlacklistRepo(db *DB) *BlacklistRepo { return &BlacklistRepo{db: db} }

// Add blacklists jti until expiresAt. Adding a present jti is a no-op.
func (r *BlacklistRepo) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	const q = `
INSERT INTO token_blacklist (jti, expires_at)
VALUES ($1, $2)
ON CONFLICT (jti) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, jti, expiresAt)
	return err
}

// Exists reports whether jti is blacklisted.
func (r *BlacklistRepo) Exists(ctx context.Context, jti string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE jti = $1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, jti).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// DeleteExpired removes entries whose access token can no longer verify anyway.
func (r *BlacklistRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM token_blacklist WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
