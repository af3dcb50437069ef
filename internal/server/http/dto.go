package httpserver

import (
	"time"

	"github.com/and161185/panel-auth/internal/model"
)

type registerRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	FullName string   `json:"fullName"`
	Roles    []string `json:"roles"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type registerResponse struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

type userDTO struct {
	ID       int64    `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Roles    []string `json:"roles"`
}

type tokenPairResponse struct {
	AccessToken           string   `json:"accessToken"`
	AccessTokenExpiresAt  string   `json:"accessTokenExpiresAt"`
	RefreshToken          string   `json:"refreshToken"`
	RefreshTokenExpiresAt string   `json:"refreshTokenExpiresAt"`
	User                  *userDTO `json:"user,omitempty"`
}

type identityDTO struct {
	ID    int64    `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

type okResponse struct {
	OK bool         `json:"ok"`
	By *identityDTO `json:"by,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func toPairResponse(p model.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:           p.AccessToken,
		AccessTokenExpiresAt:  timestamp(p.AccessTokenExpiresAt),
		RefreshToken:          p.RefreshToken,
		RefreshTokenExpiresAt: timestamp(p.RefreshTokenExpiresAt),
	}
}

func toUserDTO(u model.PublicUser) *userDTO {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return &userDTO{ID: u.ID, Email: u.Email, FullName: u.FullName, Roles: roles}
}

func toIdentityDTO(id model.Identity) *identityDTO {
	roles := id.Roles
	if roles == nil {
		roles = []string{}
	}
	return &identityDTO{ID: id.UserID, Email: id.Email, Roles: roles}
}
