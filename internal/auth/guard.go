package auth

import (
	"fmt"

	"courierchat/internal/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Guard verifies session tokens. Every mutating session operation runs the
// token through Verify first so an expired session fails fast with a
// user-facing message instead of a backend 401 mid-flight.
type Guard struct {
	secret []byte
}

func NewGuard(secret string) (*Guard, error) {
	if secret == "" {
		return nil, errors.NewConfigError("auth.secret", "session secret must not be empty")
	}
	return &Guard{secret: []byte(secret)}, nil
}

// Verify parses and validates the token and returns the authenticated user
// id from the subject claim.
func (g *Guard) Verify(token string) (string, error) {
	if token == "" {
		return "", errors.NewAuthError("missing session token")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", errors.NewAuthError(fmt.Sprintf("invalid session token: %v", err))
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", errors.NewAuthError("invalid session token claims")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.NewAuthError("session token has no subject")
	}
	return subject, nil
}
