package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/surface"
)

var ErrIncompatible = errors.New("plugin does not support this host version")

// Mode selects which sub-resources activation hands to the host.
type Mode int

const (
	ModeWeb Mode = iota
	// ModeCLI additionally registers database migrations.
	ModeCLI
)

// Host receives the resources of activated plugins. Implementations
// namespace everything by plugin id.
type Host interface {
	RegisterProvider(pluginID string, p Provider) error
	RegisterRoutes(pluginID, dir string) error
	RegisterViews(namespace, dir string) error
	RegisterTranslations(namespace, dir string) error
	RegisterMigrations(pluginID, dir string) error
	// Forget drops everything registered for pluginID.
	Forget(pluginID string)
}

// ActivationObserver is told the outcome of every activation attempt.
type ActivationObserver interface {
	PluginActivated(pluginID string, status Status)
}

// Outcome is the result of activating one plugin.
type Outcome struct {
	PluginID  string   `json:"plugin_id"`
	Status    Status   `json:"status"`
	Reason    string   `json:"reason,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

// Report collects the outcomes of a batch, in discovery order.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
}

func (r Report) Activated() []string { return r.with(StatusActivated) }
func (r Report) Failed() []string    { return r.with(StatusFailed) }

func (r Report) with(s Status) []string {
	ids := []string{}
	for _, o := range r.Outcomes {
		if o.Status == s {
			ids = append(ids, o.PluginID)
		}
	}
	return ids
}

// Activator boots enabled plugins and hands their resources to the host.
type Activator struct {
	catalog     *Catalog
	host        Host
	hooks       *hooks.Registry
	surfaces    *surface.Registry
	mode        Mode
	hostVersion *semver.Version
	settings    map[string]map[string]string
	observer    ActivationObserver
	logger      *zap.Logger
}

type ActivatorOption func(*Activator)

func WithMode(m Mode) ActivatorOption {
	return func(a *Activator) { a.mode = m }
}

// WithHostVersion enables the manifest "requires" check.
func WithHostVersion(v *semver.Version) ActivatorOption {
	return func(a *Activator) { a.hostVersion = v }
}

// WithSettings passes per-plugin settings to providers through Env.
func WithSettings(s map[string]map[string]string) ActivatorOption {
	return func(a *Activator) { a.settings = s }
}

func WithActivationObserver(o ActivationObserver) ActivatorOption {
	return func(a *Activator) { a.observer = o }
}

func NewActivator(catalog *Catalog, host Host, hr *hooks.Registry, sr *surface.Registry, logger *zap.Logger, opts ...ActivatorOption) *Activator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if catalog == nil {
		catalog = DefaultCatalog
	}
	a := &Activator{
		catalog:  catalog,
		host:     host,
		hooks:    hr,
		surfaces: sr,
		logger:   logger.With(zap.String("component", "plugin_activation")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Activate runs ActivateOne for every record in discovery order and stores
// each outcome on its record. One plugin failing never stops the batch.
func (a *Activator) Activate(ctx context.Context, reg *Registry) Report {
	report := Report{Outcomes: make([]Outcome, 0, reg.Len())}
	for _, rec := range reg.Records() {
		out := a.ActivateOne(ctx, *rec)
		rec.Status = out.Status
		rec.Reason = out.Reason
		report.Outcomes = append(report.Outcomes, out)
	}

	a.logger.Info("plugin activation finished",
		zap.Int("activated", len(report.Activated())),
		zap.Int("failed", len(report.Failed())))
	return report
}

// ActivateOne activates a single plugin, replacing whatever it registered
// before. Disabled plugins are left not-activated. A failing entry point does not prevent the plugin's routes,
// views, translations and migrations from being registered, but any hooks or
// UI contributions it made before failing are removed.
func (a *Activator) ActivateOne(ctx context.Context, rec Record) Outcome {
	id := rec.ID()
	out := Outcome{PluginID: id, Status: StatusNotActivated}
	if !rec.Enabled {
		return out
	}

	log := a.logger.With(zap.String("plugin", id))
	a.hooks.ClearPlugin(id)
	a.surfaces.ClearPlugin(id)
	a.host.Forget(id)

	if !rec.Manifest.Supports(a.hostVersion) {
		err := fmt.Errorf("%w: requires %s", ErrIncompatible, rec.Manifest.Requires)
		log.Warn("plugin not activated", zap.Error(err))
		return a.finish(out, err)
	}

	var errs []error
	if ref := rec.Manifest.ServiceProvider; ref != "" {
		if err := a.bootProvider(ctx, rec, ref); err != nil {
			log.Warn("plugin entry point failed", zap.String("service_provider", ref), zap.Error(err))
			a.hooks.ClearPlugin(id)
			a.surfaces.ClearPlugin(id)
			errs = append(errs, err)
		} else {
			out.Resources = append(out.Resources, "provider")
		}
	}

	for _, res := range a.resources(rec) {
		if !dirExists(res.dir) {
			continue
		}
		if err := res.register(); err != nil {
			log.Warn("failed to register plugin resource", zap.String("resource", res.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", res.name, err))
			continue
		}
		out.Resources = append(out.Resources, res.name)
	}

	return a.finish(out, errors.Join(errs...))
}

// Deactivate removes everything a plugin registered.
func (a *Activator) Deactivate(pluginID string) {
	a.hooks.ClearPlugin(pluginID)
	a.surfaces.ClearPlugin(pluginID)
	a.host.Forget(pluginID)
	if a.observer != nil {
		a.observer.PluginActivated(pluginID, StatusNotActivated)
	}
	a.logger.Info("plugin deactivated", zap.String("plugin", pluginID))
}

func (a *Activator) bootProvider(ctx context.Context, rec Record, ref string) error {
	factory, ok := a.catalog.Resolve(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryPointNotFound, ref)
	}
	p := factory()
	if p == nil {
		return fmt.Errorf("%w: factory for %s returned nil", ErrEntryPointNotFound, ref)
	}

	env := &Env{
		Manifest: rec.Manifest,
		Dir:      rec.Paths.Root,
		Settings: a.settings[rec.ID()],
		Hooks:    a.hooks,
		Surfaces: a.surfaces,
		Logger:   a.logger.With(zap.String("plugin", rec.ID())),
	}
	if err := boot(ctx, p, env); err != nil {
		return fmt.Errorf("boot %s: %w", ref, err)
	}
	return a.host.RegisterProvider(rec.ID(), p)
}

type resource struct {
	name     string
	dir      string
	register func() error
}

func (a *Activator) resources(rec Record) []resource {
	id := rec.ID()
	res := []resource{
		{"routes", rec.Paths.Routes, func() error { return a.host.RegisterRoutes(id, rec.Paths.Routes) }},
		{"views", rec.Paths.Views, func() error { return a.host.RegisterViews(id, rec.Paths.Views) }},
		{"translations", rec.Paths.Translations, func() error { return a.host.RegisterTranslations(id, rec.Paths.Translations) }},
	}
	if a.mode == ModeCLI {
		res = append(res, resource{"migrations", rec.Paths.Migrations, func() error {
			return a.host.RegisterMigrations(id, rec.Paths.Migrations)
		}})
	}
	return res
}

func (a *Activator) finish(out Outcome, err error) Outcome {
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
	} else {
		out.Status = StatusActivated
	}
	if a.observer != nil {
		a.observer.PluginActivated(out.PluginID, out.Status)
	}
	return out
}
