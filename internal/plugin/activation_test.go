package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/surface"
)

func enableAll(reg *Registry) {
	for _, rec := range reg.Records() {
		rec.Enabled = true
	}
}

func discover(t *testing.T, root string) *Registry {
	t.Helper()
	reg, err := Discover(root, nil)
	require.NoError(t, err)
	enableAll(reg)
	return reg
}

func TestActivate_UnresolvableEntryPointIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.registerNotifier("one")
	f.registerNotifier("three")
	writePlugin(t, f.root, "p1", `{"id": "p1", "name": "One", "service_provider": "one"}`)
	writePlugin(t, f.root, "p2", `{"id": "p2", "name": "Two", "service_provider": "missing"}`)
	writePlugin(t, f.root, "p3", `{"id": "p3", "name": "Three", "service_provider": "three"}`)
	reg := discover(t, f.root)

	var report Report
	require.NotPanics(t, func() { report = f.activator.Activate(context.Background(), reg) })

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, StatusActivated, reg.Get("p1").Status)
	assert.Equal(t, StatusFailed, reg.Get("p2").Status)
	assert.Contains(t, reg.Get("p2").Reason, "missing")
	assert.Equal(t, StatusActivated, reg.Get("p3").Status)
	assert.Equal(t, []string{"p1", "p3"}, report.Activated())
	assert.Equal(t, []string{"p2"}, report.Failed())

	channels := f.hooks.NotificationChannels(context.Background())
	require.Len(t, channels, 2)
	assert.Equal(t, "p1", channels[0].PluginID)
	assert.Equal(t, "p3", channels[1].PluginID)
}

func TestActivate_BlogAndShopScenario(t *testing.T) {
	f := newFixture(t)
	f.catalog.Register("shop", func() Provider {
		return bootFunc(func(_ context.Context, env *Env) error {
			// Registers something, then fails: the partial work must not leak.
			_ = env.Surfaces.RegisterNavbarItem("shop", surface.NavbarItem{Label: "Shop"})
			panic("database unreachable")
		})
	})
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog"}`, "routes", "resources/views")
	writePlugin(t, f.root, "shop", `{"id": "shop", "name": "Shop", "service_provider": "shop"}`, "routes")
	reg := discover(t, f.root)

	report := f.activator.Activate(context.Background(), reg)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, StatusActivated, reg.Get("blog").Status)
	assert.Equal(t, StatusFailed, reg.Get("shop").Status)
	assert.Contains(t, reg.Get("shop").Reason, "database unreachable")
	assert.Equal(t, []string{"blog"}, report.Activated())

	assert.True(t, f.host.has("routes", "blog"))
	assert.True(t, f.host.has("views", "blog"))
	// Sub-resources of a failed plugin are still registered.
	assert.True(t, f.host.has("routes", "shop"))
	assert.False(t, f.host.has("provider", "shop"))
	assert.Empty(t, f.surfaces.NavbarItems(nil))
}

func TestActivate_BootErrorClearsPartialHooks(t *testing.T) {
	f := newFixture(t)
	f.catalog.Register("flaky", func() Provider {
		return bootFunc(func(_ context.Context, env *Env) error {
			_ = env.Hooks.RegisterNotificationHook("flaky", notifier{channel: "sms"})
			return errors.New("missing api key")
		})
	})
	writePlugin(t, f.root, "flaky", `{"id": "flaky", "name": "Flaky", "service_provider": "flaky"}`)
	reg := discover(t, f.root)

	f.activator.Activate(context.Background(), reg)

	assert.Equal(t, StatusFailed, reg.Get("flaky").Status)
	assert.False(t, f.hooks.Has(hooks.CategoryNotification, "flaky"))
}

func TestActivate_DisabledPluginsAreNotActivated(t *testing.T) {
	f := newFixture(t)
	f.registerNotifier("one")
	writePlugin(t, f.root, "p1", `{"id": "p1", "name": "One", "service_provider": "one"}`, "routes")
	reg, err := Discover(f.root, nil)
	require.NoError(t, err)

	report := f.activator.Activate(context.Background(), reg)

	assert.Equal(t, StatusNotActivated, reg.Get("p1").Status)
	assert.Empty(t, report.Activated())
	assert.False(t, f.host.has("routes", "p1"))
	assert.Empty(t, f.hooks.NotificationChannels(context.Background()))
}

func TestActivate_MigrationsOnlyInCLIMode(t *testing.T) {
	web := newFixture(t)
	writePlugin(t, web.root, "shop", `{"id": "shop", "name": "Shop"}`, "database/migrations")
	web.activator.Activate(context.Background(), discover(t, web.root))
	assert.False(t, web.host.has("migrations", "shop"))

	cli := newFixture(t, WithMode(ModeCLI))
	writePlugin(t, cli.root, "shop", `{"id": "shop", "name": "Shop"}`, "database/migrations")
	cli.activator.Activate(context.Background(), discover(t, cli.root))
	assert.True(t, cli.host.has("migrations", "shop"))
}

func TestActivate_HostErrorMarksFailedButKeepsOtherResources(t *testing.T) {
	f := newFixture(t)
	f.host.failKind = "views"
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog"}`, "routes", "resources/views", "resources/lang")
	reg := discover(t, f.root)

	f.activator.Activate(context.Background(), reg)

	assert.Equal(t, StatusFailed, reg.Get("blog").Status)
	assert.Contains(t, reg.Get("blog").Reason, "views")
	assert.True(t, f.host.has("routes", "blog"))
	assert.True(t, f.host.has("translations", "blog"))
}

func TestActivate_IncompatibleHostVersion(t *testing.T) {
	f := newFixture(t, WithHostVersion(semver.MustParse("1.0.0")))
	f.registerNotifier("vote")
	writePlugin(t, f.root, "vote", `{"id": "vote", "name": "Vote", "service_provider": "vote", "requires": ">= 2.0"}`, "routes")
	reg := discover(t, f.root)

	f.activator.Activate(context.Background(), reg)

	rec := reg.Get("vote")
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.Reason, ">= 2.0")
	assert.False(t, f.host.has("routes", "vote"))
	assert.False(t, f.hooks.Has(hooks.CategoryNotification, "vote"))
}

func TestActivate_PassesSettingsToProvider(t *testing.T) {
	var got string
	f := newFixture(t, WithSettings(map[string]map[string]string{"discord": {"guild": "42"}}))
	f.catalog.Register("discord", func() Provider {
		return bootFunc(func(_ context.Context, env *Env) error {
			got = env.Setting("guild", "none")
			return nil
		})
	})
	writePlugin(t, f.root, "discord", `{"id": "discord", "name": "Discord", "service_provider": "discord"}`)

	f.activator.Activate(context.Background(), discover(t, f.root))
	assert.Equal(t, "42", got)
}

type statusRecorder struct{ seen map[string]Status }

func (s *statusRecorder) PluginActivated(id string, status Status) { s.seen[id] = status }

func TestActivate_NotifiesObserver(t *testing.T) {
	obs := &statusRecorder{seen: map[string]Status{}}
	f := newFixture(t, WithActivationObserver(obs))
	writePlugin(t, f.root, "blog", `{"id": "blog", "name": "Blog"}`)
	writePlugin(t, f.root, "shop", `{"id": "shop", "name": "Shop", "service_provider": "nope"}`)

	f.activator.Activate(context.Background(), discover(t, f.root))

	assert.Equal(t, map[string]Status{"blog": StatusActivated, "shop": StatusFailed}, obs.seen)

	f.activator.Deactivate("blog")
	assert.Equal(t, StatusNotActivated, obs.seen["blog"])
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t)
	f.registerNotifier("one")
	writePlugin(t, f.root, "p1", `{"id": "p1", "name": "One", "service_provider": "one"}`, "routes")
	f.activator.Activate(context.Background(), discover(t, f.root))
	require.True(t, f.hooks.Has(hooks.CategoryNotification, "p1"))

	f.activator.Deactivate("p1")

	assert.False(t, f.hooks.Has(hooks.CategoryNotification, "p1"))
	assert.Empty(t, f.surfaces.NavbarItems(nil))
	assert.False(t, f.host.has("routes", "p1"))
}

func TestCatalogRegisterPanicsOnDuplicate(t *testing.T) {
	c := NewCatalog()
	c.Register("x", func() Provider { return bootFunc(nil) })
	assert.Panics(t, func() { c.Register("x", func() Provider { return bootFunc(nil) }) })
	assert.Panics(t, func() { c.Register("", func() Provider { return bootFunc(nil) }) })
	assert.Panics(t, func() { c.Register("y", nil) })
	assert.Equal(t, []string{"x"}, c.Refs())
}
