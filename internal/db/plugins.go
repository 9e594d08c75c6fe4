package db

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// PluginMigration is a plugin's migrations directory.
type PluginMigration struct {
	PluginID string `json:"plugin_id"`
	Dir      string `json:"dir"`
}

// PluginMigrations collects the migration directories of activated plugins,
// in registration order.
type PluginMigrations struct {
	mu    sync.Mutex
	dirs  map[string]string
	order []string
}

func NewPluginMigrations() *PluginMigrations {
	return &PluginMigrations{dirs: make(map[string]string)}
}

func (p *PluginMigrations) Add(pluginID, dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.dirs[pluginID]; !ok {
		p.order = append(p.order, pluginID)
	}
	p.dirs[pluginID] = dir
}

func (p *PluginMigrations) Remove(pluginID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.dirs[pluginID]; !ok {
		return
	}
	delete(p.dirs, pluginID)
	for i, id := range p.order {
		if id == pluginID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *PluginMigrations) List() []PluginMigration {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PluginMigration, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, PluginMigration{PluginID: id, Dir: p.dirs[id]})
	}
	return out
}

// MigrationsTable is the golang-migrate version table used for a plugin, so
// that every plugin keeps its own schema version.
func MigrationsTable(pluginID string) string {
	var b strings.Builder
	b.WriteString("plugin_")
	for _, r := range strings.ToLower(pluginID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	b.WriteString("_migrations")
	return b.String()
}

// withMigrationsTable sets the x-migrations-table parameter understood by the
// postgres driver.
func withMigrationsTable(databaseURL, table string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}
	q := u.Query()
	q.Set("x-migrations-table", table)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RunPluginMigrations applies every plugin's migrations in order and stops
// at the first failure.
func RunPluginMigrations(databaseURL string, migrations []PluginMigration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, pm := range migrations {
		dbURL, err := withMigrationsTable(databaseURL, MigrationsTable(pm.PluginID))
		if err != nil {
			return err
		}
		if err := up("file://"+pm.Dir, dbURL); err != nil {
			return fmt.Errorf("plugin %s: %w", pm.PluginID, err)
		}
		logger.Info("plugin migrations applied", zap.String("plugin", pm.PluginID), zap.String("dir", pm.Dir))
	}
	return nil
}
