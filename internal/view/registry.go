// Package view resolves namespaced template names such as "blog::posts.show"
// to html/template files contributed by plugins.
package view

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Extension is appended to view names when looking up template files.
const Extension = ".html"

var (
	ErrUnknownNamespace = errors.New("unknown view namespace")
	ErrViewNotFound     = errors.New("view not found")
	ErrInvalidName      = errors.New("view name must look like namespace::name")
)

// Registry maps namespaces to template directories. Parsed templates are
// cached until their namespace is removed or replaced.
type Registry struct {
	mu     sync.RWMutex
	dirs   map[string]string
	cache  map[string]*template.Template
	funcs  template.FuncMap
	logger *zap.Logger
}

type Option func(*Registry)

// WithFuncs makes funcs available to every template.
func WithFuncs(funcs template.FuncMap) Option {
	return func(r *Registry) {
		for k, v := range funcs {
			r.funcs[k] = v
		}
	}
}

func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		dirs:   make(map[string]string),
		cache:  make(map[string]*template.Template),
		funcs:  template.FuncMap{},
		logger: logger.With(zap.String("component", "views")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddNamespace points ns at dir, replacing any previous directory.
func (r *Registry) AddNamespace(ns, dir string) error {
	if ns == "" {
		return fmt.Errorf("%w: empty namespace", ErrInvalidName)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("view directory for %s: %w", ns, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("view directory for %s is not a directory: %s", ns, dir)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs[ns] = dir
	r.dropCached(ns)
	r.logger.Debug("view namespace registered", zap.String("namespace", ns), zap.String("dir", dir))
	return nil
}

func (r *Registry) RemoveNamespace(ns string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dirs, ns)
	r.dropCached(ns)
}

// must be called with mu held
func (r *Registry) dropCached(ns string) {
	prefix := ns + "::"
	for name := range r.cache {
		if strings.HasPrefix(name, prefix) {
			delete(r.cache, name)
		}
	}
}

func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.dirs))
	for ns := range r.dirs {
		out = append(out, ns)
	}
	return out
}

// Exists reports whether name resolves to a template file.
func (r *Registry) Exists(name string) bool {
	path, err := r.resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Render executes the template called name. Dots in the part after "::"
// separate directories, so "blog::posts.show" is posts/show.html in the blog
// namespace.
func (r *Registry) Render(w io.Writer, name string, data any) error {
	tmpl, err := r.lookup(name)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, data)
}

func (r *Registry) lookup(name string) (*template.Template, error) {
	r.mu.RLock()
	tmpl, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrViewNotFound, name)
		}
		return nil, fmt.Errorf("read view %s: %w", name, err)
	}
	tmpl, err = template.New(name).Funcs(r.funcs).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse view %s: %w", name, err)
	}

	r.mu.Lock()
	r.cache[name] = tmpl
	r.mu.Unlock()
	return tmpl, nil
}

func (r *Registry) resolve(name string) (string, error) {
	ns, rel, ok := strings.Cut(name, "::")
	if !ok || ns == "" || rel == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.Contains(rel, "/") || strings.Contains(rel, `\`) || strings.Contains(rel, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mu.RLock()
	dir, ok := r.dirs[ns]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
	}
	return filepath.Join(dir, filepath.Join(strings.Split(rel, ".")...)+Extension), nil
}
