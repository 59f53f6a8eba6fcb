package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned by TokenExpiry for tokens without an exp claim.
var ErrNoExpiry = errors.New("token has no expiry")

// TokenExpiry returns the expiry of a JWT session token. The signature is
// not verified: only the stack can do that, the client merely wants to know
// when to refresh.
func TokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// Expired reports whether the client token expires within leeway of now.
// Tokens that are not JWTs or carry no expiry never expire.
func (c *StackClient) Expired(now time.Time, leeway time.Duration) bool {
	exp, err := TokenExpiry(c.Token())
	if err != nil {
		return false
	}
	return !now.Add(leeway).Before(exp)
}
