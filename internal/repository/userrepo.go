// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/panel-auth/internal/model"
)

// UserRepository is the credential store: users with their role assignments.
type UserRepository interface {
	// Create inserts a new user and returns its ID. Duplicate emails yield errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) (int64, error)
	// GetByID loads a user with roles by ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByEmail loads a user with roles by email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// ExistsByEmail reports whether the email is already registered.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// AssignRoles links existing roles by name; unknown names are ignored.
	AssignRoles(ctx context.Context, userID int64, roles []string) error
}
