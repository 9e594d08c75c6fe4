package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
)

type memoryStore struct {
	mu      sync.Mutex
	states  map[string]bool
	loadErr error
	saved   []string
}

func (s *memoryStore) LoadStates(context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(map[string]bool, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) SaveState(_ context.Context, m Manifest, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states == nil {
		s.states = map[string]bool{}
	}
	s.states[m.ID] = enabled
	s.saved = append(s.saved, m.ID)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestManager_LoadActivatesConfiguredPlugins(t *testing.T) {
	f := newFixture(t)
	f.registerNotifier("blog")
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog", "service_provider": "blog"}`)
	writePlugin(t, f.root, "shop", `{"id": "shop", "name": "Shop"}`)

	m := NewManager(f.root, f.activator, nil, WithEnabled([]string{"blog"}))
	require.NoError(t, m.Load(context.Background()))

	assert.Equal(t, []string{"blog"}, m.EnabledIDs())
	assert.True(t, m.IsEnabled("blog"))
	assert.False(t, m.IsEnabled("shop"))

	blog, ok := m.Get("blog")
	require.True(t, ok)
	assert.Equal(t, StatusActivated, blog.Status)
	shop, ok := m.Get("shop")
	require.True(t, ok)
	assert.Equal(t, StatusNotActivated, shop.Status)

	assert.Len(t, m.List(), 2)
	assert.Equal(t, []string{"blog"}, m.LastReport().Activated())
}

func TestManager_WildcardEnablesEverything(t *testing.T) {
	f := newFixture(t)
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog"}`)
	writePlugin(t, f.root, "shop", `{"id": "shop", "name": "Shop"}`)

	m := NewManager(f.root, f.activator, nil, WithEnabled([]string{EnableAll}))
	require.NoError(t, m.Load(context.Background()))

	assert.Equal(t, []string{"blog", "shop"}, m.EnabledIDs())
}

func TestManager_LoadHonoursTTL(t *testing.T) {
	f := newFixture(t)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog"}`)

	m := NewManager(f.root, f.activator, nil, WithTTL(time.Minute), WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, m.Load(ctx))
	assert.Len(t, m.List(), 1)

	writePlugin(t, f.root, "shop", `{"id": "shop", "name": "Shop"}`)
	require.NoError(t, m.Load(ctx))
	assert.Len(t, m.List(), 1, "a fresh scan is reused")

	clock.Advance(2 * time.Minute)
	require.NoError(t, m.Load(ctx))
	assert.Len(t, m.List(), 2)
}

func TestManager_ReloadBypassesTTL(t *testing.T) {
	f := newFixture(t)
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog"}`)

	m := NewManager(f.root, f.activator, nil, WithTTL(time.Hour))
	ctx := context.Background()
	require.NoError(t, m.Load(ctx))

	writePlugin(t, f.root, "shop", `{"id": "shop", "name": "Shop"}`)
	require.NoError(t, m.Reload(ctx))
	assert.Len(t, m.List(), 2)
}

func TestManager_ReloadReplacesHooks(t *testing.T) {
	f := newFixture(t)
	f.registerNotifier("blog")
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog", "service_provider": "blog"}`)

	m := NewManager(f.root, f.activator, nil, WithEnabled([]string{EnableAll}))
	ctx := context.Background()
	require.NoError(t, m.Load(ctx))
	require.NoError(t, m.Reload(ctx))

	assert.Len(t, f.hooks.NotificationChannels(ctx), 1)
	assert.Len(t, f.surfaces.NavbarItems(nil), 1)
}

func TestManager_EnableDisable(t *testing.T) {
	f := newFixture(t)
	f.registerNotifier("blog")
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog", "service_provider": "blog"}`)
	store := &memoryStore{}

	m := NewManager(f.root, f.activator, nil, WithStateStore(store))
	ctx := context.Background()

	// Initially not enabled
	require.NoError(t, m.Load(ctx))
	assert.Empty(t, m.EnabledIDs())
	assert.False(t, f.hooks.Has(hooks.CategoryNotification, "blog"))

	out, err := m.Enable(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, StatusActivated, out.Status)
	assert.Equal(t, []string{"blog"}, m.EnabledIDs())
	assert.True(t, f.hooks.Has(hooks.CategoryNotification, "blog"))
	assert.Len(t, f.surfaces.NavbarItems(m.EnabledIDs()), 1)

	out, err = m.Disable(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, StatusNotActivated, out.Status)
	assert.Empty(t, m.EnabledIDs())
	assert.False(t, f.hooks.Has(hooks.CategoryNotification, "blog"))
	assert.Empty(t, f.surfaces.NavbarItems(nil))

	assert.Equal(t, []string{"blog", "blog"}, store.saved)
	assert.Equal(t, map[string]bool{"blog": false}, store.states)
}

func TestManager_EnableTwiceKeepsOneContribution(t *testing.T) {
	f := newFixture(t)
	f.registerNotifier("blog")
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog", "service_provider": "blog"}`)

	m := NewManager(f.root, f.activator, nil, WithEnabled([]string{"blog"}))
	ctx := context.Background()
	require.NoError(t, m.Load(ctx))

	for i := 0; i < 2; i++ {
		out, err := m.Enable(ctx, "blog")
		require.NoError(t, err)
		assert.Equal(t, StatusActivated, out.Status)
	}

	assert.Len(t, f.surfaces.NavbarItems(m.EnabledIDs()), 1)
	assert.Len(t, f.hooks.NotificationChannels(ctx), 1)
}

type statusHistory struct {
	mu   sync.Mutex
	seen map[string][]Status
}

func (h *statusHistory) PluginActivated(id string, status Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[id] = append(h.seen[id], status)
}

func TestManager_ReloadOnlyDeactivatesDroppedPlugins(t *testing.T) {
	obs := &statusHistory{seen: map[string][]Status{}}
	f := newFixture(t, WithActivationObserver(obs))
	f.registerNotifier("notify")
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog", "service_provider": "notify"}`)
	writePlugin(t, f.root, "shop", `{"id": "shop", "name": "Shop", "service_provider": "notify"}`)
	store := &memoryStore{}

	m := NewManager(f.root, f.activator, nil, WithEnabled([]string{EnableAll}), WithStateStore(store))
	ctx := context.Background()
	require.NoError(t, m.Load(ctx))

	store.mu.Lock()
	store.states = map[string]bool{"shop": false}
	store.mu.Unlock()
	require.NoError(t, m.Reload(ctx))

	assert.Equal(t, []Status{StatusActivated, StatusActivated}, obs.seen["blog"])
	assert.Equal(t, []Status{StatusActivated, StatusNotActivated}, obs.seen["shop"])
	assert.True(t, f.hooks.Has(hooks.CategoryNotification, "blog"))
	assert.False(t, f.hooks.Has(hooks.CategoryNotification, "shop"))
	assert.Len(t, f.surfaces.NavbarItems(nil), 1)
}

func TestManager_EnableUnknownPlugin(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.root, f.activator, nil)

	_, err := m.Enable(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestManager_StoredStateOverridesConfig(t *testing.T) {
	f := newFixture(t)
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog"}`)
	writePlugin(t, f.root, "shop", `{"id": "shop", "name": "Shop"}`)
	store := &memoryStore{states: map[string]bool{"blog": false, "shop": true}}

	m := NewManager(f.root, f.activator, nil, WithEnabled([]string{"blog"}), WithStateStore(store))
	require.NoError(t, m.Load(context.Background()))

	assert.Equal(t, []string{"shop"}, m.EnabledIDs())
}

func TestManager_StoreFailureFallsBackToConfig(t *testing.T) {
	f := newFixture(t)
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog"}`)
	store := &memoryStore{loadErr: errors.New("connection refused")}

	m := NewManager(f.root, f.activator, nil, WithEnabled([]string{"blog"}), WithStateStore(store))
	require.NoError(t, m.Load(context.Background()))

	assert.Equal(t, []string{"blog"}, m.EnabledIDs())
}

func TestManager_ConcurrentLoads(t *testing.T) {
	f := newFixture(t)
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog"}`)
	m := NewManager(f.root, f.activator, nil, WithEnabled([]string{EnableAll}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Load(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"blog"}, m.EnabledIDs())
}

func TestManager_BeforeLoad(t *testing.T) {
	m := NewManager(t.TempDir(), newFixture(t).activator, nil)

	assert.Empty(t, m.List())
	assert.NotNil(t, m.EnabledIDs())
	assert.False(t, m.IsEnabled("blog"))
	_, ok := m.Get("blog")
	assert.False(t, ok)
}
