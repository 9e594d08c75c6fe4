// Package host is the concrete plugin.Host: it mounts plugin routes on the
// HTTP router and wires views, translations and migrations into the
// subsystems that serve them.
package host

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/db"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/httputil"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/i18n"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/plugin"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/view"
)

// Middleware group names usable in routes/web.yaml.
const (
	GroupWeb  = "web"
	GroupAuth = "auth"
)

// DefaultGroups wrap plugin routes that do not choose their own.
var DefaultGroups = []string{GroupWeb, GroupAuth}

// ReservedPrefixes cannot be used as plugin ids because the host serves them.
var ReservedPrefixes = map[string]bool{"api": true, "metrics": true, "healthz": true, "static": true}

var ErrReservedPrefix = errors.New("plugin id collides with a host route prefix")

// Kernel implements plugin.Host. Every plugin gets its own router serving
// /<plugin-id>; forgetting a plugin drops that router, so its routes stop
// answering without touching the host router. The kernel installs itself as
// the host router's NotFoundHandler, so host routes always take precedence.
type Kernel struct {
	views      *view.Registry
	translator *i18n.Translator
	migrations *db.PluginMigrations
	groups     map[string]mux.MiddlewareFunc
	logger     *zap.Logger

	mu      sync.RWMutex
	plugins map[string]*pluginRouter
}

type pluginRouter struct {
	root *mux.Router
	sub  *mux.Router
}

type Option func(*Kernel)

// WithGroup registers a named middleware group for plugin routes.
func WithGroup(name string, mw mux.MiddlewareFunc) Option {
	return func(k *Kernel) { k.groups[name] = mw }
}

func NewKernel(router *mux.Router, views *view.Registry, translator *i18n.Translator, migrations *db.PluginMigrations, logger *zap.Logger, opts ...Option) *Kernel {
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &Kernel{
		views:      views,
		translator: translator,
		migrations: migrations,
		groups:     make(map[string]mux.MiddlewareFunc),
		logger:     logger.With(zap.String("component", "host")),
		plugins:    make(map[string]*pluginRouter),
	}
	for _, opt := range opts {
		opt(k)
	}
	if router != nil {
		router.NotFoundHandler = k
	}
	return k
}

// ServeHTTP routes a request to the plugin named by its first path segment.
func (k *Kernel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	k.mu.RLock()
	pr := k.plugins[id]
	k.mu.RUnlock()
	if pr == nil {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	pr.root.ServeHTTP(w, r)
}

var _ plugin.Host = (*Kernel)(nil)

// RegisterProvider mounts the routes of providers that serve HTTP.
func (k *Kernel) RegisterProvider(pluginID string, p plugin.Provider) error {
	rr, ok := p.(plugin.RouteRegistrar)
	if !ok {
		return nil
	}
	pr, err := k.routerFor(pluginID)
	if err != nil {
		return err
	}
	sub := pr.sub.PathPrefix("").Subrouter()
	if web, ok := k.groups[GroupWeb]; ok {
		sub.Use(web)
	}
	rr.RegisterRoutes(sub)
	return nil
}

// RegisterRoutes mounts the declarative routes of dir/web.yaml.
func (k *Kernel) RegisterRoutes(pluginID, dir string) error {
	table, err := LoadRouteTable(dir)
	if err != nil {
		return err
	}
	if len(table.Routes) == 0 {
		return nil
	}

	// Resolve every route first so a bad table mounts nothing.
	type mounted struct {
		route   Route
		handler http.Handler
	}
	resolved := make([]mounted, 0, len(table.Routes))
	for _, route := range table.Routes {
		h, err := k.wrap(k.action(pluginID, route), table.middlewareFor(route, DefaultGroups))
		if err != nil {
			return fmt.Errorf("%s %s: %w", route.Method, route.Path, err)
		}
		resolved = append(resolved, mounted{route, h})
	}

	pr, err := k.routerFor(pluginID)
	if err != nil {
		return err
	}
	for _, m := range resolved {
		r := pr.sub.Handle(m.route.Path, m.handler).Methods(m.route.Method)
		if m.route.Name != "" {
			r.Name(pluginID + "." + m.route.Name)
		}
		if m.route.Path == "/" {
			pr.root.Handle("/"+pluginID, m.handler).Methods(m.route.Method)
		}
	}
	k.logger.Info("plugin routes mounted", zap.String("plugin", pluginID), zap.Int("routes", len(resolved)))
	return nil
}

func (k *Kernel) RegisterViews(namespace, dir string) error {
	return k.views.AddNamespace(namespace, dir)
}

func (k *Kernel) RegisterTranslations(namespace, dir string) error {
	return k.translator.Load(namespace, dir)
}

func (k *Kernel) RegisterMigrations(pluginID, dir string) error {
	k.migrations.Add(pluginID, dir)
	return nil
}

// Forget removes everything registered for pluginID.
func (k *Kernel) Forget(pluginID string) {
	k.mu.Lock()
	delete(k.plugins, pluginID)
	k.mu.Unlock()

	k.views.RemoveNamespace(pluginID)
	k.translator.Remove(pluginID)
	k.migrations.Remove(pluginID)
}

func (k *Kernel) routerFor(pluginID string) (*pluginRouter, error) {
	if ReservedPrefixes[pluginID] {
		return nil, fmt.Errorf("%w: %s", ErrReservedPrefix, pluginID)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if pr, ok := k.plugins[pluginID]; ok {
		return pr, nil
	}
	root := mux.NewRouter()
	pr := &pluginRouter{root: root, sub: root.PathPrefix("/" + pluginID).Subrouter()}
	k.plugins[pluginID] = pr
	return pr, nil
}

// Plugins lists the ids that currently have routes.
func (k *Kernel) Plugins() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ids := make([]string, 0, len(k.plugins))
	for id := range k.plugins {
		ids = append(ids, id)
	}
	return ids
}

func (k *Kernel) wrap(h http.Handler, groups []string) (http.Handler, error) {
	for i := len(groups) - 1; i >= 0; i-- {
		mw, ok := k.groups[groups[i]]
		if !ok {
			return nil, fmt.Errorf("%w: unknown middleware group %q", ErrInvalidRoute, groups[i])
		}
		h = mw(h)
	}
	return h, nil
}

func (k *Kernel) action(pluginID string, route Route) http.Handler {
	switch {
	case route.Redirect != "":
		return http.RedirectHandler(route.Redirect, route.Status)
	case route.Text != "":
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(route.Status)
			w.Write([]byte(route.Text)) //nolint:errcheck
		})
	default:
		name := pluginID + "::" + route.View
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data := map[string]any{
				"Plugin": pluginID,
				"Params": mux.Vars(r),
				"Locale": k.translator.ResolveLocale(r),
			}
			var buf bytes.Buffer
			if err := k.views.Render(&buf, name, data); err != nil {
				k.logger.Warn("view render failed", zap.String("plugin", pluginID), zap.String("view", name), zap.Error(err))
				status := http.StatusInternalServerError
				if errors.Is(err, view.ErrViewNotFound) || errors.Is(err, view.ErrUnknownNamespace) {
					status = http.StatusNotFound
				}
				httputil.WriteError(w, status, "view unavailable")
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(route.Status)
			w.Write(buf.Bytes()) //nolint:errcheck
		})
	}
}

// ViewFuncs are template helpers bound to the translator, for use with
// view.WithFuncs.
func ViewFuncs(t *i18n.Translator) map[string]any {
	return map[string]any{
		"t": func(locale, key string) string { return t.T(locale, key, nil) },
	}
}
