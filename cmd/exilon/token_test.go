package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/auth"
)

const testSecret = "cli-test-secret"

func tokenConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exilon.yaml")
	writeFile(t, path, "auth:\n  jwt_secret: "+testSecret+"\n  token_ttl: 1h\n")
	return path
}

func TestToken_SignsAdminToken(t *testing.T) {
	out, err := run(t, "--config", tokenConfig(t), "token")
	require.NoError(t, err)

	claims, err := auth.NewJWTService(testSecret, time.Hour).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.UserID)
	assert.Equal(t, "admin", claims.Username)
	assert.True(t, claims.IsAdmin())
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestToken_JSON(t *testing.T) {
	out, err := run(t, "--config", tokenConfig(t), "token", "--json",
		"--user", "42", "--username", "alice", "--role", "editor,moderator", "--ttl", "5m")
	require.NoError(t, err)

	var got tokenOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.Token)
	assert.Equal(t, "42", got.User.ID)
	assert.Equal(t, "alice", got.User.Username)
	assert.Equal(t, []string{"editor", "moderator"}, got.User.Roles)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), got.ExpiresAt, time.Minute)

	claims, err := auth.NewJWTService(testSecret, 0).ValidateToken(got.Token)
	require.NoError(t, err)
	assert.False(t, claims.IsAdmin())
}
