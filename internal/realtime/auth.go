package realtime

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Auth failures at the live boundary. Connections are rejected before any
// room join (fail closed).
var (
	ErrUnauthorized = errors.New("invalid or expired token")
	ErrForbidden    = errors.New("no membership in requested farm")
)

// Identity is the verified principal behind a live connection.
type Identity struct {
	UserID string
}

// Claims are the bearer token claims accepted at the live boundary.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates a signed bearer token and resolves the identity.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// JWTVerifier verifies HS256-signed bearer tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a JWTVerifier with the given signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the identity from the
// subject claim.
func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}
	if claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	return &Identity{UserID: claims.Subject}, nil
}
