// Package token signs and verifies HS256 access tokens.
package token

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/model"
)

// Claims is the access token payload. Roles are a snapshot taken at mint time.
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into the caller identity.
func (c *Claims) Identity() (model.Identity, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return model.Identity{}, errs.ErrInvalidToken
	}
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	return model.Identity{UserID: id, Email: c.Email, Roles: roles, JTI: c.ID}, nil
}

// Codec mints and verifies access tokens with a server-held symmetric key.
type Codec struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec constructs a codec. An empty key or non-positive ttl is a configuration error.
func NewCodec(key []byte, ttl time.Duration) (*Codec, error) {
	return newCodec(key, ttl, time.Now)
}

func newCodec(key []byte, ttl time.Duration, now func() time.Time) (*Codec, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: signing key is empty", errs.ErrConfiguration)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: access token ttl must be positive", errs.ErrConfiguration)
	}
	c := &Codec{key: key, ttl: ttl, now: now}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c, nil
}

// TTL returns the default access token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Mint signs a new access token for u. Every call yields a fresh jti.
// A non-positive ttl falls back to the codec default.
func (c *Codec) Mint(u model.User, ttl time.Duration) (model.AccessToken, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	jti, err := uuid.NewV4()
	if err != nil {
		return model.AccessToken{}, err
	}
	now := c.now()
	exp := now.Add(ttl).Truncate(time.Second)

	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	claims := Claims{
		Email: u.Email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return model.AccessToken{}, err
	}
	return model.AccessToken{Token: signed, JTI: jti.String(), ExpiresAt: exp}, nil
}

// Verify checks signature, algorithm and expiry. Every failure is reported as errs.ErrInvalidToken.
func (c *Codec) Verify(tok string) (*Claims, error) {
	var claims Claims
	parsed, err := c.parser.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errs.ErrInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errs.ErrInvalidToken
	}
	return &claims, nil
}
