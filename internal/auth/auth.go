// Package auth resolves bearer tokens to acting identities. Login and session
// issuance live outside this service; only verification happens here.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/threadlane/threadlane/internal/models"
)

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth secret must be at least 32 bytes")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// ActorFromToken validates an HS256 token and returns the actor it names.
func (v *Verifier) ActorFromToken(tokenString string) (models.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return models.Actor{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return models.Actor{}, fmt.Errorf("invalid token")
	}

	role := models.ActorRole(claims.Role)
	switch role {
	case models.RoleCustomer, models.RoleAdmin:
	default:
		return models.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	if claims.Subject == "" {
		return models.Actor{}, fmt.Errorf("token has no subject")
	}

	return models.Actor{ID: claims.Subject, Role: role}, nil
}

// IssueToken signs a token for the given actor. Used by operational tooling
// and tests; the storefront's own session flow issues its tokens elsewhere.
func (v *Verifier) IssueToken(actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
