package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/surface"
)

// writePlugin creates root/dir with the given plugin.json (skipped when
// manifest is empty) and the listed sub-directories.
func writePlugin(t *testing.T, root, dir, manifest string, subdirs ...string) string {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0o755))
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(path, ManifestFile), []byte(manifest), 0o644))
	}
	for _, sub := range subdirs {
		require.NoError(t, os.MkdirAll(filepath.Join(path, filepath.FromSlash(sub)), 0o755))
	}
	return path
}

type hostCall struct {
	kind     string
	pluginID string
	dir      string
}

type fakeHost struct {
	mu        sync.Mutex
	calls     []hostCall
	forgotten []string
	failKind  string
}

func (h *fakeHost) record(kind, id, dir string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if kind == h.failKind {
		return errors.New("host rejected " + kind)
	}
	h.calls = append(h.calls, hostCall{kind: kind, pluginID: id, dir: dir})
	return nil
}

func (h *fakeHost) RegisterProvider(id string, _ Provider) error { return h.record("provider", id, "") }
func (h *fakeHost) RegisterRoutes(id, dir string) error          { return h.record("routes", id, dir) }
func (h *fakeHost) RegisterViews(ns, dir string) error           { return h.record("views", ns, dir) }
func (h *fakeHost) RegisterTranslations(ns, dir string) error    { return h.record("translations", ns, dir) }
func (h *fakeHost) RegisterMigrations(id, dir string) error      { return h.record("migrations", id, dir) }

func (h *fakeHost) Forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forgotten = append(h.forgotten, id)
	kept := h.calls[:0]
	for _, c := range h.calls {
		if c.pluginID != id {
			kept = append(kept, c)
		}
	}
	h.calls = kept
}

func (h *fakeHost) has(kind, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.calls {
		if c.kind == kind && c.pluginID == id {
			return true
		}
	}
	return false
}

// bootFunc adapts a function to Provider.
type bootFunc func(ctx context.Context, env *Env) error

func (f bootFunc) Boot(ctx context.Context, env *Env) error { return f(ctx, env) }

type notifier struct{ channel string }

func (n notifier) Channels(context.Context) ([]hooks.NotificationChannel, error) {
	return []hooks.NotificationChannel{{ID: n.channel, Name: n.channel}}, nil
}

func (n notifier) Send(context.Context, string, hooks.User, map[string]any) error { return nil }

type fixture struct {
	root      string
	catalog   *Catalog
	host      *fakeHost
	hooks     *hooks.Registry
	surfaces  *surface.Registry
	activator *Activator
}

func newFixture(t *testing.T, opts ...ActivatorOption) *fixture {
	t.Helper()
	f := &fixture{
		root:     t.TempDir(),
		catalog:  NewCatalog(),
		host:     &fakeHost{},
		hooks:    hooks.NewRegistry(nil),
		surfaces: surface.NewRegistry(nil),
	}
	f.activator = NewActivator(f.catalog, f.host, f.hooks, f.surfaces, nil, opts...)
	return f
}

// registerNotifier adds a provider that registers a notification hook and a
// navbar item for its plugin.
func (f *fixture) registerNotifier(ref string) {
	f.catalog.Register(ref, func() Provider {
		return bootFunc(func(_ context.Context, env *Env) error {
			if err := env.Hooks.RegisterNotificationHook(env.Manifest.ID, notifier{channel: env.Manifest.ID}); err != nil {
				return err
			}
			return env.Surfaces.RegisterNavbarItem(env.Manifest.ID, surface.NavbarItem{Label: env.Manifest.Name})
		})
	})
}
