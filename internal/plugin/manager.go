package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrPluginNotFound = errors.New("plugin not found")

// DefaultScanTTL is how long a discovery pass stays fresh.
const DefaultScanTTL = 5 * time.Minute

// EnableAll in the configured enabled list turns every discovered plugin on.
const EnableAll = "*"

// Manager ties discovery and activation together and owns the current
// plugin registry. Mutations (reload, enable, disable) are serialised.
type Manager struct {
	root      string
	ttl       time.Duration
	defaults  map[string]bool
	activator *Activator
	store     StateStore
	cache     ScanCache
	now       func() time.Time
	logger    *zap.Logger

	group singleflight.Group
	opMu  sync.Mutex

	mu       sync.RWMutex
	reg      *Registry
	loadedAt time.Time
	report   Report
}

type ManagerOption func(*Manager)

func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithEnabled sets the configured enabled set. "*" enables everything.
func WithEnabled(ids []string) ManagerOption {
	return func(m *Manager) {
		m.defaults = make(map[string]bool, len(ids))
		for _, id := range ids {
			m.defaults[id] = true
		}
	}
}

func WithStateStore(s StateStore) ManagerOption {
	return func(m *Manager) { m.store = s }
}

func WithScanCache(c ScanCache) ManagerOption {
	return func(m *Manager) { m.cache = c }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(root string, activator *Activator, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		root:      root,
		ttl:       DefaultScanTTL,
		defaults:  map[string]bool{},
		activator: activator,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "plugin_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load discovers and activates plugins unless the last pass is younger than
// the TTL. Concurrent callers share one pass.
func (m *Manager) Load(ctx context.Context) error {
	if m.fresh() {
		return nil
	}
	_, err, _ := m.group.Do("scan", func() (any, error) {
		if m.fresh() {
			return nil, nil
		}
		return nil, m.reload(ctx, false)
	})
	return err
}

// Reload forces a new discovery and activation pass, bypassing both the TTL
// and the shared scan cache.
func (m *Manager) Reload(ctx context.Context) error {
	_, err, _ := m.group.Do("scan", func() (any, error) {
		return nil, m.reload(ctx, true)
	})
	return err
}

func (m *Manager) fresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg != nil && m.now().Sub(m.loadedAt) < m.ttl
}

func (m *Manager) reload(ctx context.Context, force bool) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	reg, err := m.scan(ctx, force)
	if err != nil {
		return err
	}

	states := m.loadStates(ctx)
	for _, rec := range reg.Records() {
		rec.Enabled = m.enabled(rec.ID(), states)
	}

	// Plugins that stay enabled are swapped one at a time by ActivateOne, so
	// the rest of the registries keep serving during the pass.
	m.mu.RLock()
	previous := m.reg
	m.mu.RUnlock()
	if previous != nil {
		for _, id := range previous.IDs() {
			if rec := reg.Get(id); rec == nil || !rec.Enabled {
				m.activator.Deactivate(id)
			}
		}
	}

	report := m.activator.Activate(ctx, reg)

	m.mu.Lock()
	m.reg = reg
	m.loadedAt = m.now()
	m.report = report
	m.mu.Unlock()
	return nil
}

func (m *Manager) scan(ctx context.Context, force bool) (*Registry, error) {
	if m.cache != nil && !force {
		records, ok, err := m.cache.Load(ctx, m.root)
		if err != nil {
			m.logger.Warn("scan cache unavailable", zap.Error(err))
		} else if ok {
			return NewRegistryFrom(records), nil
		}
	}

	reg, err := Discover(m.root, m.logger)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		if err := m.cache.Store(ctx, m.root, reg.Snapshot(), m.ttl); err != nil {
			m.logger.Warn("failed to store scan", zap.Error(err))
		}
	}
	return reg, nil
}

func (m *Manager) loadStates(ctx context.Context) map[string]bool {
	if m.store == nil {
		return nil
	}
	states, err := m.store.LoadStates(ctx)
	if err != nil {
		m.logger.Warn("failed to load plugin states, using configured defaults", zap.Error(err))
		return nil
	}
	return states
}

func (m *Manager) enabled(id string, states map[string]bool) bool {
	if v, ok := states[id]; ok {
		return v
	}
	return m.defaults[EnableAll] || m.defaults[id]
}

// Enable marks a plugin enabled, persists the choice and activates it. The
// returned outcome carries the activation status.
func (m *Manager) Enable(ctx context.Context, id string) (Outcome, error) {
	return m.setEnabled(ctx, id, true)
}

// Disable marks a plugin disabled and removes its hooks, UI contributions
// and host resources right away.
func (m *Manager) Disable(ctx context.Context, id string) (Outcome, error) {
	return m.setEnabled(ctx, id, false)
}

func (m *Manager) setEnabled(ctx context.Context, id string, enabled bool) (Outcome, error) {
	if err := m.Load(ctx); err != nil {
		return Outcome{}, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	rec := m.reg.Get(id)
	var snapshot Record
	if rec != nil {
		snapshot = *rec
	}
	m.mu.RUnlock()
	if rec == nil {
		return Outcome{}, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}

	if m.store != nil {
		if err := m.store.SaveState(ctx, snapshot.Manifest, enabled); err != nil {
			return Outcome{}, err
		}
	}

	var out Outcome
	if enabled {
		snapshot.Enabled = true
		out = m.activator.ActivateOne(ctx, snapshot)
	} else {
		m.activator.Deactivate(id)
		out = Outcome{PluginID: id, Status: StatusNotActivated}
	}

	m.mu.Lock()
	rec.Enabled = enabled
	rec.Status = out.Status
	rec.Reason = out.Reason
	m.mu.Unlock()

	m.logger.Info("plugin state changed", zap.String("plugin", id),
		zap.Bool("enabled", enabled), zap.String("status", string(out.Status)))
	return out, nil
}

// List returns copies of every discovered plugin in discovery order.
func (m *Manager) List() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reg == nil {
		return []Record{}
	}
	return m.reg.Snapshot()
}

func (m *Manager) Get(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reg == nil {
		return Record{}, false
	}
	rec := m.reg.Get(id)
	if rec == nil {
		return Record{}, false
	}
	return *rec, true
}

// EnabledIDs returns the ids of enabled plugins in discovery order. The
// result is never nil, so it can be passed straight to surface getters.
func (m *Manager) EnabledIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []string{}
	if m.reg == nil {
		return ids
	}
	for _, rec := range m.reg.Records() {
		if rec.Enabled {
			ids = append(ids, rec.ID())
		}
	}
	return ids
}

func (m *Manager) IsEnabled(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reg == nil {
		return false
	}
	rec := m.reg.Get(id)
	return rec != nil && rec.Enabled
}

// LastReport returns the report of the most recent full activation pass.
func (m *Manager) LastReport() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report
}
