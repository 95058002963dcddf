package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for a bearer token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// HeroTokens issues and verifies HS256 tokens whose subject is a hero id.
type HeroTokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewHeroTokens uses secret for signing. An empty secret disables
// verification and every Verify call fails.
func NewHeroTokens(secret, issuer string) *HeroTokens {
	return &HeroTokens{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue returns a signed token for heroID valid for ttl.
func (h *HeroTokens) Issue(heroID string, ttl time.Duration) (string, error) {
	if len(h.secret) == 0 {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	now := h.now()
	claims := jwt.RegisteredClaims{
		Subject:   heroID,
		Issuer:    h.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

// Verify checks the signature, expiry and issuer and returns the hero id.
func (h *HeroTokens) Verify(token string) (string, error) {
	if len(h.secret) == 0 {
		return "", fmt.Errorf("%w: jwt secret is not configured", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(h.now),
		jwt.WithExpirationRequired(),
	}
	if h.issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.issuer))
	}
	var claims jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return h.secret, nil
	}, opts...); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
