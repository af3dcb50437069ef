// Package memstore is an in-memory implementation of the repository
// interfaces. It backs tests and local runs without PostgreSQL.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/model"
)

// Store holds users, refresh tokens and the blacklist under one mutex.
type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	roles     map[string]struct{}
	users     map[int64]model.User
	tokens    []model.RefreshToken
	blacklist map[string]time.Time
	lastUser  int64
	lastToken int64
}

// New returns an empty store seeded with the admin and moderator roles.
func New() *Store {
	return &Store{
		now:       time.Now,
		roles:     map[string]struct{}{"admin": {}, "moderator": {}},
		users:     map[int64]model.User{},
		blacklist: map[string]time.Time{},
	}
}

// SetClock replaces the time source used for expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// SetActive flips a user's active flag.
func (s *Store) SetActive(userID int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IsActive = active
		s.users[userID] = u
	}
}

// RefreshRows returns a copy of every refresh row of a user, oldest first.
func (s *Store) RefreshRows(userID int64) []model.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RefreshToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, copyToken(t))
		}
	}
	return out
}

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s: s} }

// RefreshTokens returns the refresh token repository view.
func (s *Store) RefreshTokens() *RefreshTokens { return &RefreshTokens{s: s} }

// Blacklist returns the blacklist repository view.
func (s *Store) Blacklist() *Blacklist { return &Blacklist{s: s} }

func copyToken(t model.RefreshToken) model.RefreshToken {
	if t.RevokedAt != nil {
		r := *t.RevokedAt
		t.RevokedAt = &r
	}
	return t
}

func copyUser(u model.User) *model.User {
	u.Roles = slices.Clone(u.Roles)
	return &u
}

// Users implements repository.UserRepository.
type Users struct{ s *Store }

// Create stores u and assigns it the next id.
func (r *Users) Create(_ context.Context, u *model.User) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return 0, errs.ErrAlreadyExists
		}
	}
	r.s.lastUser++
	u.ID = r.s.lastUser
	u.CreatedAt = r.s.now()
	stored := *copyUser(*u)
	stored.Roles = nil
	r.s.users[u.ID] = stored
	return u.ID, nil
}

// GetByID returns a copy of the user.
func (r *Users) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return copyUser(u), nil
}

// GetByEmail returns a copy of the user with the exact email.
func (r *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, errs.ErrNotFound
}

// ExistsByEmail reports whether email is taken.
func (r *Users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

// AssignRoles adds known roles to the user, keeping names sorted.
func (r *Users) AssignRoles(_ context.Context, userID int64, roles []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return errs.ErrNotFound
	}
	for _, name := range roles {
		if _, known := r.s.roles[name]; known && !slices.Contains(u.Roles, name) {
			u.Roles = append(u.Roles, name)
		}
	}
	slices.Sort(u.Roles)
	r.s.users[userID] = u
	return nil
}

// RefreshTokens implements repository.RefreshTokenRepository.
type RefreshTokens struct{ s *Store }

// Create appends t with the next id.
func (r *RefreshTokens) Create(_ context.Context, t *model.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.insertLocked(t)
	return nil
}

func (r *RefreshTokens) insertLocked(t *model.RefreshToken) {
	r.s.lastToken++
	t.ID = r.s.lastToken
	t.Type = model.TokenTypeRefresh
	t.CreatedAt = r.s.now()
	r.s.tokens = append(r.s.tokens, copyToken(*t))
}

// ListUsable returns live rows newest first, at most limit rows.
func (r *RefreshTokens) ListUsable(_ context.Context, limit int) ([]model.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	var out []model.RefreshToken
	for i := len(r.s.tokens) - 1; i >= 0 && len(out) < limit; i-- {
		if t := r.s.tokens[i]; t.Usable(now) {
			out = append(out, copyToken(t))
		}
	}
	return out, nil
}

// Rotate revokes oldID and appends next atomically.
func (r *RefreshTokens) Rotate(_ context.Context, oldID int64, next *model.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	i := r.indexLocked(oldID)
	if i < 0 || !r.s.tokens[i].Usable(now) {
		return errs.ErrInvalidRefreshToken
	}
	r.s.tokens[i].RevokedAt = &now
	next.UserID = r.s.tokens[i].UserID
	r.insertLocked(next)
	return nil
}

// Revoke marks the row revoked if it is not already.
func (r *RefreshTokens) Revoke(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 && r.s.tokens[i].RevokedAt == nil {
		now := r.s.now()
		r.s.tokens[i].RevokedAt = &now
	}
	return nil
}

// RevokeExcess revokes the user's live rows past the newest keep.
func (r *RefreshTokens) RevokeExcess(_ context.Context, userID int64, keep int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	var seen, revoked int64
	for i := len(r.s.tokens) - 1; i >= 0; i-- {
		t := &r.s.tokens[i]
		if t.UserID != userID || !t.Usable(now) {
			continue
		}
		seen++
		if seen > int64(keep) {
			at := now
			t.RevokedAt = &at
			revoked++
		}
	}
	return revoked, nil
}

func (r *RefreshTokens) indexLocked(id int64) int {
	for i := range r.s.tokens {
		if r.s.tokens[i].ID == id {
			return i
		}
	}
	return -1
}

// Blacklist implements repository.BlacklistRepository.
type Blacklist struct{ s *Store }

// Add records jti; an existing entry keeps its expiry.
func (r *Blacklist) Add(_ context.Context, jti string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.blacklist[jti]; !ok {
		r.s.blacklist[jti] = expiresAt
	}
	return nil
}

// Exists reports whether jti is blacklisted.
func (r *Blacklist) Exists(_ context.Context, jti string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.blacklist[jti]
	return ok, nil
}

// DeleteExpired drops entries past their expiry.
func (r *Blacklist) DeleteExpired(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	var n int64
	for jti, exp := range r.s.blacklist {
		if exp.Before(now) {
			delete(r.s.blacklist, jti)
			n++
		}
	}
	return n, nil
}
