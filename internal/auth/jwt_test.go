package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edujam/pkg/interfaces"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "edujam")
	require.NoError(t, err)

	tok, err := v.Sign("alice", "alice@example.com", time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Identity{UserID: "alice", Email: "alice@example.com"}, id)
}

func TestJWTVerifier_RequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("", "")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestJWTVerifier_Rejections(t *testing.T) {
	v, _ := NewJWTVerifier("s3cret", "edujam")
	other, _ := NewJWTVerifier("other", "edujam")
	wrongIssuer, _ := NewJWTVerifier("s3cret", "someone-else")

	expired, err := v.Sign("alice", "", -time.Minute)
	require.NoError(t, err)
	forged, err := other.Sign("alice", "", time.Minute)
	require.NoError(t, err)
	foreign, err := wrongIssuer.Sign("alice", "", time.Minute)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "edujam"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, interfaces.ErrExpiredToken},
		{"wrong key", forged, interfaces.ErrInvalidToken},
		{"wrong issuer", foreign, interfaces.ErrInvalidToken},
		{"no subject", noSubject, interfaces.ErrInvalidToken},
		{"garbage", "not-a-jwt", interfaces.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJWTVerifier_SubjectFallback(t *testing.T) {
	v, _ := NewJWTVerifier("s3cret", "")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "bob",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	id, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "bob", id.UserID)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/board?token=query-token", nil)
	assert.Equal(t, "query-token", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/ws/board", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Empty(t, TokenFromRequest(r))
}
