package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the stable user identity resolved from a credential. It is
// bound to a connection at handshake time and never re-derived per event.
type Identity struct {
	UserID   int
	Username string
}

// Verifier resolves an opaque bearer credential to a user identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTVerifier validates HMAC-signed session tokens issued by the
// marketplace's session layer.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a JWTVerifier.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verify checks the token signature and expiry and returns the identity.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID == 0 {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: userID, Username: claims.Username}, nil
}

// IssueToken signs a session token for the user. The session layer of the
// marketplace calls this on login; tests use it to mint credentials.
func IssueToken(secret string, userID int, username string, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
