package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupScanCache(t *testing.T) (*miniredis.Miniredis, *RedisScanCache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisScanCache(client, nil)
}

func TestRedisScanCache_RoundTrip(t *testing.T) {
	mr, cache := setupScanCache(t)
	ctx := context.Background()

	_, ok, err := cache.Load(ctx, "/srv/plugins")
	require.NoError(t, err)
	assert.False(t, ok)

	records := []Record{{
		Manifest: Manifest{ID: "blog", Name: "Blog", Version: "1.0.0"},
		Paths:    pathsFor("/srv/plugins/blog"),
		Enabled:  true,
		Status:   StatusActivated,
	}}
	require.NoError(t, cache.Store(ctx, "/srv/plugins", records, time.Minute))

	got, ok, err := cache.Load(ctx, "/srv/plugins")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, records[0].Manifest, got[0].Manifest)
	assert.Equal(t, records[0].Paths, got[0].Paths)
	assert.False(t, got[0].Enabled, "activation state is not shared")
	assert.Equal(t, StatusNotActivated, got[0].Status)

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Load(ctx, "/srv/plugins")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisScanCache_CorruptEntryIsAMiss(t *testing.T) {
	mr, cache := setupScanCache(t)
	require.NoError(t, mr.Set(scanKeyPrefix+"/srv/plugins", "{nope"))

	_, ok, err := cache.Load(context.Background(), "/srv/plugins")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisScanCache_Invalidate(t *testing.T) {
	mr, cache := setupScanCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Store(ctx, "/srv/plugins", []Record{}, time.Minute))

	require.NoError(t, cache.Invalidate(ctx, "/srv/plugins"))
	assert.False(t, mr.Exists(scanKeyPrefix+"/srv/plugins"))
}

func TestManager_SharesScanThroughCache(t *testing.T) {
	_, cache := setupScanCache(t)
	ctx := context.Background()

	first := newFixture(t)
	writePlugin(t, first.root, "blog", `{"id": "blog", "name": "Blog"}`)
	m1 := NewManager(first.root, first.activator, nil, WithScanCache(cache))
	require.NoError(t, m1.Load(ctx))

	// A second process sharing the cache does not need to walk the tree.
	require.NoError(t, os.RemoveAll(filepath.Join(first.root, "blog")))
	second := newFixture(t)
	m2 := NewManager(first.root, second.activator, nil, WithScanCache(cache), WithEnabled([]string{EnableAll}))
	require.NoError(t, m2.Load(ctx))
	assert.Equal(t, []string{"blog"}, m2.EnabledIDs())

	// Reload skips the cache and sees the real tree.
	require.NoError(t, m2.Reload(ctx))
	assert.Empty(t, m2.List())
}
