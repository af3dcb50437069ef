package model

import (
	"testing"
	"time"
)

func TestIdentity_HasAnyRole(t *testing.T) {
	t.Parallel()

	id := Identity{UserID: 1, Roles: []string{"moderator"}}
	if !id.HasAnyRole() {
		t.Fatalf("empty requirement must pass")
	}
	if !id.HasAnyRole("admin", "moderator") {
		t.Fatalf("want intersection match")
	}
	if id.HasAnyRole("admin") {
		t.Fatalf("unexpected match for admin")
	}
	if (Identity{}).HasAnyRole("admin") {
		t.Fatalf("identity without roles must not match")
	}
}

func TestRefreshToken_Usable(t *testing.T) {
	t.Parallel()

	now := time.Now()
	live := RefreshToken{ExpiresAt: now.Add(time.Minute)}
	if !live.Usable(now) {
		t.Fatalf("live token must be usable")
	}

	expired := RefreshToken{ExpiresAt: now.Add(-time.Second)}
	if expired.Usable(now) {
		t.Fatalf("expired token must not be usable")
	}

	revokedAt := now.Add(-time.Minute)
	revoked := RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}
	if revoked.Usable(now) {
		t.Fatalf("revoked token must not be usable")
	}
}

func TestUser_PublicNeverNilRoles(t *testing.T) {
	t.Parallel()

	p := User{ID: 7, Email: "a@b.c", FullName: "A", PasswordHash: "secret"}.Public()
	if p.Roles == nil || len(p.Roles) != 0 {
		t.Fatalf("want empty non-nil roles, got %#v", p.Roles)
	}
	if p.ID != 7 || p.Email != "a@b.c" || p.FullName != "A" {
		t.Fatalf("bad public user: %+v", p)
	}
}
