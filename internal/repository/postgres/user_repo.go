package postgres

import (
	"context"
	"errors"

	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/model"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const selectUser = `
SELECT u.id, u.email, u.password_hash, COALESCE(u.full_name, ''), u.is_active, u.created_at,
       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id`

// Create inserts a new user row and returns its id.
func (r *UserRepo) Create(ctx context.Context, u *model.User) (int64, error) {
	const q = `
INSERT INTO users (email, password_hash, full_name, is_active)
VALUES ($1, $2, NULLIF($3, ''), $4)
RETURNING id, created_at`
	err := r.db.Pool.QueryRow(ctx, q, u.Email, u.PasswordHash, u.FullName, u.IsActive).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return 0, errs.ErrAlreadyExists
	}
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// GetByID selects a user with roles by ID.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, selectUser+`
WHERE u.id = $1
GROUP BY u.id`, id)
}

// GetByEmail selects a user with roles by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, selectUser+`
WHERE u.email = $1
GROUP BY u.id`, email)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	err := r.db.Pool.QueryRow(ctx, q, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.IsActive, &u.CreatedAt, &u.Roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ExistsByEmail reports whether an account with email exists.
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, email).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// AssignRoles links the user to the named roles. Unknown names are skipped.
func (r *UserRepo) AssignRoles(ctx context.Context, userID int64, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	const q = `
INSERT INTO user_roles (user_id, role_id)
SELECT $1, r.id FROM roles r WHERE r.name = ANY($2)
ON CONFLICT DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, userID, roles)
	return err
}
