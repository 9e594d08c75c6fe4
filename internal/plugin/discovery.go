package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Registry is the result of one discovery pass: plugin id to record, in
// discovery order. It is rebuilt wholesale on every pass.
type Registry struct {
	records map[string]*Record
	order   []string
}

func newRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// NewRegistryFrom rebuilds a registry from records, e.g. a cached scan.
// Later records win on id collision.
func NewRegistryFrom(records []Record) *Registry {
	reg := newRegistry()
	for i := range records {
		rec := records[i]
		reg.put(&rec)
	}
	return reg
}

func (r *Registry) put(rec *Record) (replaced bool) {
	id := rec.ID()
	if _, ok := r.records[id]; ok {
		replaced = true
		for i, existing := range r.order {
			if existing == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.records[id] = rec
	r.order = append(r.order, id)
	return replaced
}

func (r *Registry) Len() int { return len(r.order) }

// Get returns the record for id, or nil.
func (r *Registry) Get(id string) *Record { return r.records[id] }

// IDs returns plugin ids in discovery order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Records returns the live records in discovery order.
func (r *Registry) Records() []*Record {
	out := make([]*Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

// Snapshot returns copies of every record in discovery order.
func (r *Registry) Snapshot() []Record {
	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.records[id])
	}
	return out
}

// Discover scans the immediate sub-directories of root for plugin manifests.
// Sub-directories are visited in lexical order. Directories without a
// manifest are ignored, directories with an invalid one are logged and
// skipped, and when two directories declare the same id the later one wins.
// A missing root yields an empty registry.
func Discover(root string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "plugin_discovery"))

	reg := newRegistry()
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("plugin root does not exist", zap.String("root", root))
			return reg, nil
		}
		return nil, fmt.Errorf("failed to read plugin root %s: %w", root, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		dir := filepath.Join(root, name)
		if !isDir(entry, dir) {
			continue
		}

		res := ReadManifest(dir)
		switch res.Status {
		case ManifestAbsent:
			continue
		case ManifestInvalid:
			logger.Warn("skipping plugin with invalid manifest", zap.String("dir", dir), zap.Error(res.Err))
			continue
		}

		rec := &Record{
			Manifest: *res.Manifest,
			Paths:    pathsFor(dir),
			Status:   StatusNotActivated,
		}
		if reg.put(rec) {
			logger.Warn("duplicate plugin id, later directory wins",
				zap.String("plugin", rec.ID()), zap.String("dir", dir))
		}
	}

	logger.Info("plugin discovery finished", zap.String("root", root), zap.Int("plugins", reg.Len()))
	return reg, nil
}

func isDir(entry os.DirEntry, path string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// dirExists reports whether path is an existing directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
