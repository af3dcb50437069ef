// Package model defines domain entities used by services and repositories.
package model

import (
	"slices"
	"time"
)

// TokenTypeRefresh is the only token kind currently stored in the tokens table.
const TokenTypeRefresh = "refresh"

// User represents an account stored on the server. Passwords are kept only as bcrypt digests.
type User struct {
	ID           int64  // PK
	Email        string // unique, case-sensitive as stored
	PasswordHash string // bcrypt digest
	FullName     string
	IsActive     bool
	Roles        []string // role names, loaded with the user
	CreatedAt    time.Time
}

// Public returns the user's public profile.
func (u User) Public() PublicUser {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return PublicUser{ID: u.ID, Email: u.Email, FullName: u.FullName, Roles: roles}
}

// PublicUser is the part of a user that may be returned to clients.
type PublicUser struct {
	ID       int64
	Email    string
	FullName string
	Roles    []string
}

// RequestMeta is captured at refresh token issuance for audit.
type RequestMeta struct {
	UserAgent string
	IP        string
}

// RefreshToken is a persisted refresh token row. The raw secret is never stored.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	Type      string
	UserAgent string
	IP        string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Usable reports whether the token may still authenticate a refresh request.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// BlacklistEntry marks an access token id as invalid until ExpiresAt.
type BlacklistEntry struct {
	ID        int64
	JTI       string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// AccessToken is a freshly minted signed access token.
type AccessToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// TokenPair collects an access token and its paired raw refresh token.
type TokenPair struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Tokens TokenPair
	User   PublicUser
}

// Identity is the authenticated caller as carried by an access token.
type Identity struct {
	UserID int64
	Email  string
	Roles  []string
	JTI    string
}

// HasAnyRole reports whether the identity holds at least one of roles.
// An empty roles list is always satisfied.
func (i Identity) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if slices.Contains(i.Roles, r) {
			return true
		}
	}
	return false
}
