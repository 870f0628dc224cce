// Package signing issues and verifies short-lived tokens that grant access to
// a single upstream media object without exposing upstream credentials.
package signing

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const mediaAudience = "media"

var (
	ErrInvalidToken = errors.New("signing: invalid media token")
	ErrEmptySubject = errors.New("signing: empty subject")
)

type Signer struct {
	Secret []byte
	// now is overridable in tests.
	now func() time.Time
}

func New(secret string) *Signer {
	return &Signer{Secret: []byte(secret), now: time.Now}
}

// Sign returns an HS256 token whose subject is the upstream object path.
func (s *Signer) Sign(subject string, exp time.Time) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", ErrEmptySubject
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{mediaAudience},
		IssuedAt:  jwt.NewNumericDate(s.clock()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// Verify checks signature, audience and expiry and returns the subject.
func (s *Signer) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(mediaAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *Signer) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
