// Package service contains the sync pipeline, the control-surface dispatcher and operator auth.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/storefront-sync/internal/errs"
)

// OperatorAuth issues and verifies HS256 bearer tokens for control-surface operators.
type OperatorAuth interface {
	// Issue signs a token for subject valid for ttl.
	Issue(subject string, ttl time.Duration) (token string, expiresAt time.Time, err error)
	// Verify checks signature and expiry and returns the subject.
	Verify(token string) (subject string, err error)
}

type OperatorAuthImpl struct {
	signKey []byte
	now     func() time.Time
}

// NewOperatorAuth constructs OperatorAuth over an HS256 key.
func NewOperatorAuth(signKey []byte) *OperatorAuthImpl {
	return &OperatorAuthImpl{signKey: signKey, now: time.Now}
}

// Issue creates a signed HS256 JWT for the given subject.
func (a *OperatorAuthImpl) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	now := a.now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(a.signKey)
	return signed, exp, err
}

// Verify parses token and returns its subject. Any failure is errs.ErrUnauthorized.
func (a *OperatorAuthImpl) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", errs.ErrUnauthorized
	}
	return claims.Subject, nil
}
