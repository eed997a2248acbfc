// Package auth turns bearer tokens into authenticated principals. Login and
// password handling live upstream; this package only mints and validates
// the signed identity a request carries.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/scope"
)

// Claims represents the JWT payload of a principal token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs an access token for a principal.
func Issue(principalID string, role scope.Role, issuer, key string, ttl time.Duration) (token string, expiresAt time.Time, err error) {
	expiresAt = time.Now().Add(ttl)

	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   principalID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse validates a token and returns the principal it identifies.
func Parse(tokenStr, key, issuer string) (scope.Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return scope.Principal{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return scope.Principal{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return scope.Principal{}, errors.New("issuer mismatch")
	}

	role := scope.Role(claims.Role)
	if role != scope.RoleAdmin && role != scope.RoleTeacher {
		return scope.Principal{}, errors.New("unknown role")
	}
	return scope.Principal{ID: claims.Subject, Role: role}, nil
}
