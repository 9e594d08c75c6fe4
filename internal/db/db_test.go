package db

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithInvalidURL(t *testing.T) {
	_, err := New(context.Background(), "postgres://invalid:5432/nonexistent?connect_timeout=1")
	assert.Error(t, err)
}

func TestPluginMigrations(t *testing.T) {
	pm := NewPluginMigrations()
	pm.Add("shop", "/plugins/shop/database/migrations")
	pm.Add("blog", "/plugins/blog/database/migrations")
	pm.Add("shop", "/srv/shop/database/migrations")

	assert.Equal(t, []PluginMigration{
		{PluginID: "shop", Dir: "/srv/shop/database/migrations"},
		{PluginID: "blog", Dir: "/plugins/blog/database/migrations"},
	}, pm.List())

	pm.Remove("shop")
	pm.Remove("ghost")
	assert.Equal(t, []PluginMigration{{PluginID: "blog", Dir: "/plugins/blog/database/migrations"}}, pm.List())
}

func TestMigrationsTable(t *testing.T) {
	assert.Equal(t, "plugin_shop_migrations", MigrationsTable("shop"))
	assert.Equal(t, "plugin_discord_login_migrations", MigrationsTable("Discord-Login"))
}

func TestWithMigrationsTable(t *testing.T) {
	got, err := withMigrationsTable("postgres://u:p@localhost:5432/exilon?sslmode=disable", "plugin_shop_migrations")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "plugin_shop_migrations", u.Query().Get("x-migrations-table"))
}

func TestRunPluginMigrationsNothingToDo(t *testing.T) {
	assert.NoError(t, RunPluginMigrations("postgres://localhost/exilon", nil, nil))
}
