// Package auth issues and checks the signed links that open the race
// dashboard.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "amazing-race-bot"

var ErrInvalidToken = errors.New("invalid dashboard token")

type Claims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for an admin. It expires after the issuer's TTL.
func (i *Issuer) Issue(username string) (string, error) {
	now := i.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   username,
		},
	})
	s, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign dashboard token: %w", err)
	}
	return s, nil
}

func (i *Issuer) Verify(token string) (*Claims, error) {
	cl := &Claims{}
	tok, err := jwt.ParseWithClaims(token, cl, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return cl, nil
}
