package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
)

var member = hooks.User{ID: "42", Username: "steve", Email: "steve@example.com", Roles: []string{"member"}}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewJWTService("test-secret-key", 0)

	token, err := svc.GenerateToken(member)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "steve", claims.Username)
	assert.Equal(t, member, claims.User())
	assert.False(t, claims.IsAdmin())
	assert.True(t, claims.HasRole("member"))
}

func TestAdminRole(t *testing.T) {
	svc := NewJWTService("test-secret-key", time.Hour)
	token, err := svc.GenerateToken(hooks.User{ID: "1", Username: "root", Roles: []string{RoleAdmin}})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
}

func TestValidateExpiredToken(t *testing.T) {
	svc := &JWTService{secretKey: []byte("test-secret-key"), accessDuration: -time.Hour}
	token, err := svc.GenerateToken(member)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateForeignKey(t *testing.T) {
	token, err := NewJWTService("different-secret-key", 0).GenerateToken(member)
	require.NoError(t, err)

	_, err = NewJWTService("test-secret-key", 0).ValidateToken(token)
	assert.Error(t, err)
}

func TestEmptySecret(t *testing.T) {
	svc := NewJWTService("", 0)
	_, err := svc.GenerateToken(member)
	assert.ErrorIs(t, err, ErrEmptySecret)
	_, err = svc.ValidateToken("a.b.c")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestRejectsAlgNone(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"1","roles":["admin"],"iss":"exiloncms","exp":9999999999}`))

	_, err := NewJWTService("test-secret-key", 0).ValidateToken(header + "." + payload + ".")
	assert.Error(t, err)
}

func TestRejectsAsymmetricAlgorithm(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"sub":   "1",
		"roles": []string{RoleAdmin},
		"iss":   issuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	_, err = NewJWTService("test-secret-key", 0).ValidateToken(signed)
	assert.Error(t, err)
}

func TestRejectsForeignIssuer(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	_, err = NewJWTService("test-secret-key", 0).ValidateToken(signed)
	assert.Error(t, err)
}

func TestRejectsTamperedRoles(t *testing.T) {
	svc := NewJWTService("test-secret-key", 0)
	token, err := svc.GenerateToken(member)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	payload["roles"] = []string{RoleAdmin}
	tampered, err := json.Marshal(payload)
	require.NoError(t, err)

	_, err = svc.ValidateToken(parts[0] + "." + base64.RawURLEncoding.EncodeToString(tampered) + "." + parts[2])
	assert.Error(t, err)

	_, err = svc.ValidateToken(parts[0] + "." + parts[1] + ".")
	assert.Error(t, err, "stripped signature")
}

func TestRejectsMalformedTokens(t *testing.T) {
	svc := NewJWTService("test-secret-key", 0)
	for _, tok := range []string{
		"",
		".",
		"a.b.c",
		"eyJhbGciOiJIUzI1NiJ9..",
		"Bearer eyJhbGciOiJIUzI1NiJ9.e30.",
		strings.Repeat("A", 4096),
	} {
		_, err := svc.ValidateToken(tok)
		assert.Error(t, err, "token %q", tok)
	}
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	claims := &Claims{UserID: "42"}
	got, ok := ClaimsFromContext(ContextWithClaims(context.Background(), claims))
	require.True(t, ok)
	assert.Same(t, claims, got)
}
