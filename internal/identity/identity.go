// Package identity turns connection credentials into domain identities.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("auth secret not configured")
)

// Claims are carried by account tokens. The subject is the account id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier issues and checks HS256 account tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for accountID. A zero ttl yields a token without expiry.
func (v *Verifier) Issue(accountID, name string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	if strings.TrimSpace(accountID) == "" {
		return "", domain.ErrInvalidIdentity
	}
	now := v.now()
	claims := &Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  accountID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify checks tokenString and returns the account identity it names.
func (v *Verifier) Verify(tokenString string) (domain.Identity, error) {
	if len(v.secret) == 0 {
		return domain.Identity{}, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.AccountIdentity(claims.Subject, claims.Name), nil
}

// NewGuestToken returns a fresh opaque guest token.
func NewGuestToken() string {
	return uuid.NewString()
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
