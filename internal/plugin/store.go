package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StateStore persists which plugins an administrator enabled or disabled.
// Persisted states override the configured defaults.
type StateStore interface {
	LoadStates(ctx context.Context) (map[string]bool, error)
	SaveState(ctx context.Context, m Manifest, enabled bool) error
}

// StoredPlugin is a row of the plugins table.
type StoredPlugin struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Manifest    Manifest  `json:"manifest"`
	Enabled     bool      `json:"enabled"`
	InstalledAt time.Time `json:"installed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) SaveState(ctx context.Context, m Manifest, enabled bool) error {
	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO plugins (id, name, version, manifest, enabled)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = $2, version = $3, manifest = $4, enabled = $5, updated_at = NOW()`,
		m.ID, m.Name, m.Version, manifestJSON, enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to save plugin state: %w", err)
	}
	return nil
}

func (s *Store) LoadStates(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, enabled FROM plugins`)
	if err != nil {
		return nil, fmt.Errorf("failed to load plugin states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]bool)
	for rows.Next() {
		var id string
		var enabled bool
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan plugin state: %w", err)
		}
		states[id] = enabled
	}
	return states, rows.Err()
}

func (s *Store) ListPlugins(ctx context.Context) ([]*StoredPlugin, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, version, manifest, enabled, installed_at, updated_at
		 FROM plugins ORDER BY installed_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	defer rows.Close()

	var plugins []*StoredPlugin
	for rows.Next() {
		var p StoredPlugin
		var manifestJSON []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Version, &manifestJSON, &p.Enabled, &p.InstalledAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plugin: %w", err)
		}
		if err := json.Unmarshal(manifestJSON, &p.Manifest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
		}
		plugins = append(plugins, &p)
	}
	return plugins, rows.Err()
}
