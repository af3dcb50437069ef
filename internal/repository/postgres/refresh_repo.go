package postgres

import (
	"context"
	"errors"

	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/model"
	"github.com/jackc/pgx/v5"
)

// RefreshTokenRepo implements RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepo struct{ db *DB }

// NewRefreshTokenRepo constructs a refresh token repository.
func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

const insertRefresh = `
INSERT INTO tokens (user_id, token_hash, type, user_agent, ip_address, expires_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
RETURNING id, created_at`

// Create stores a new refresh token row and fills its id and creation time.
func (r *RefreshTokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	return r.db.Pool.QueryRow(ctx, insertRefresh,
		t.UserID, t.TokenHash, model.TokenTypeRefresh, t.UserAgent, t.IP, t.ExpiresAt,
	).Scan(&t.ID, &t.CreatedAt)
}

// ListUsable returns up to limit unrevoked, unexpired refresh rows, newest first.
func (r *RefreshTokenRepo) ListUsable(ctx context.Context, limit int) ([]model.RefreshToken, error) {
	const q = `
SELECT id, user_id, token_hash, expires_at, created_at
FROM tokens
WHERE type = 'refresh' AND revoked_at IS NULL AND expires_at > now()
ORDER BY id DESC
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RefreshToken
	for rows.Next() {
		t := model.RefreshToken{Type: model.TokenTypeRefresh}
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Rotate revokes oldID and stores next in one transaction. The old row is
// locked first, so of two concurrent rotations of the same token only one
// succeeds; the other gets ErrInvalidRefreshToken.
func (r *RefreshTokenRepo) Rotate(ctx context.Context, oldID int64, next *model.RefreshToken) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `
SELECT user_id FROM tokens
WHERE id = $1 AND type = 'refresh' AND revoked_at IS NULL AND expires_at > now()
FOR UPDATE`
	var userID int64
	if err = tx.QueryRow(ctx, sel, oldID).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrInvalidRefreshToken
		}
		return err
	}

	if _, err = tx.Exec(ctx, `UPDATE tokens SET revoked_at = now() WHERE id = $1`, oldID); err != nil {
		return err
	}

	next.UserID = userID
	return tx.QueryRow(ctx, insertRefresh,
		next.UserID, next.TokenHash, model.TokenTypeRefresh, next.UserAgent, next.IP, next.ExpiresAt,
	).Scan(&next.ID, &next.CreatedAt)
}

// Revoke marks a refresh row as revoked. Revoking an already revoked row is a no-op.
func (r *RefreshTokenRepo) Revoke(ctx context.Context, id int64) error {
	const q = `UPDATE tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return err
}

// RevokeExcess revokes all but the keep newest usable refresh rows of a user.
func (r *RefreshTokenRepo) RevokeExcess(ctx context.Context, userID int64, keep int) (int64, error) {
	const q = `
UPDATE tokens SET revoked_at = now()
WHERE id IN (
  SELECT id FROM tokens
  WHERE user_id = $1 AND type = 'refresh' AND revoked_at IS NULL AND expires_at > now()
  ORDER BY id DESC
  OFFSET $2
)`
	tag, err := r.db.Pool.Exec(ctx, q, userID, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
