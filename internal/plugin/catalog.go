package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/surface"
)

var ErrEntryPointNotFound = errors.New("entry point not found")

// Provider is a plugin entry point. Boot runs once per activation and is
// where a plugin registers its hooks and UI contributions.
type Provider interface {
	Boot(ctx context.Context, env *Env) error
}

// RouteRegistrar is implemented by providers that serve HTTP routes in
// addition to the declarative routes/web.yaml. The router is already scoped
// to the plugin's prefix.
type RouteRegistrar interface {
	RegisterRoutes(r *mux.Router)
}

// Env is what a provider receives while booting.
type Env struct {
	Manifest Manifest
	Dir      string
	Settings map[string]string
	Hooks    *hooks.Registry
	Surfaces *surface.Registry
	Logger   *zap.Logger
}

// Setting returns the host-configured value for key, or fallback.
func (e *Env) Setting(key, fallback string) string {
	if v, ok := e.Settings[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Factory builds a fresh provider instance.
type Factory func() Provider

// Catalog maps the service_provider reference of a manifest to the compiled-in
// factory that implements it.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register makes a factory available under ref. It panics if ref is empty,
// f is nil, or ref is registered twice.
func (c *Catalog) Register(ref string, f Factory) {
	if ref == "" {
		panic("plugin: Register with empty reference")
	}
	if f == nil {
		panic("plugin: Register factory is nil for " + ref)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.factories[ref]; dup {
		panic("plugin: Register called twice for " + ref)
	}
	c.factories[ref] = f
}

func (c *Catalog) Resolve(ref string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[ref]
	return f, ok
}

// Refs returns the registered references, sorted.
func (c *Catalog) Refs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	refs := make([]string, 0, len(c.factories))
	for ref := range c.factories {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// DefaultCatalog holds the providers compiled into the binary. Built-in
// plugins add themselves from init.
var DefaultCatalog = NewCatalog()

// Register adds a factory to DefaultCatalog.
func Register(ref string, f Factory) {
	DefaultCatalog.Register(ref, f)
}

// boot calls p.Boot, turning a panic into an error.
func boot(ctx context.Context, p Provider, env *Env) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("provider panicked: %v", rec)
		}
	}()
	return p.Boot(ctx, env)
}
