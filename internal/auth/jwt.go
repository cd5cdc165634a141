package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"edujam/pkg/interfaces"
)

// ErrMissingSecret is returned when a verifier is built without a key
var ErrMissingSecret = errors.New("jwt secret is required")

// Claims carried by EduJam access tokens. user_id wins over sub when both are set.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HMAC-signed tokens
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier creates a verifier. An empty issuer accepts any issuer.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify resolves a token to an identity
func (v *JWTVerifier) Verify(tokenString string) (interfaces.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, interfaces.ErrInvalidToken
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return interfaces.Identity{}, interfaces.ErrExpiredToken
		}
		return interfaces.Identity{}, interfaces.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return interfaces.Identity{}, interfaces.ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return interfaces.Identity{}, interfaces.ErrInvalidToken
	}
	return interfaces.Identity{UserID: userID, Email: claims.Email}, nil
}

// Sign issues a token for userID valid for ttl. Used by tests and local tooling.
func (v *JWTVerifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// TokenFromRequest reads a bearer token from the Authorization header or the
// token query parameter. Browsers cannot set headers on a WebSocket handshake,
// hence the query fallback.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
