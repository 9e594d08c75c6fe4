package surface

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrEmptyPluginID = errors.New("plugin id must not be empty")
	ErrInvalidItem   = errors.New("invalid contribution")
)

// Registry stores the UI contributions of every plugin. Contributions stay
// registered while their plugin is disabled; getters filter them out at query
// time when handed the enabled set.
type Registry struct {
	mu  sync.RWMutex
	seq uint64

	blocks   list[Block]
	navbar   list[NavbarItem]
	footer   list[FooterLink]
	pages    list[Page]
	sections list[AdminSection]

	logger *zap.Logger
}

// NewRegistry creates an empty surface registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger.With(zap.String("component", "surface_registry"))}
}

// RegisterBlock adds or replaces the block blockID of pluginID.
func (r *Registry) RegisterBlock(pluginID, blockID string, b Block) error {
	if pluginID == "" {
		return ErrEmptyPluginID
	}
	if blockID == "" {
		return fmt.Errorf("%w: block id is required", ErrInvalidItem)
	}
	b.PluginID = pluginID
	b.ID = blockID
	if b.Type == "" {
		b.Type = BlockComponent
	}
	if b.Position == "" {
		b.Position = DefaultBlockPosition
	}
	if b.Order == 0 {
		b.Order = DefaultOrder
	}
	switch b.Type {
	case BlockComponent:
		if b.Component == "" {
			return fmt.Errorf("%w: block %q needs a component", ErrInvalidItem, blockID)
		}
	case BlockHTML, BlockMarkdown:
		if b.Content == "" {
			return fmt.Errorf("%w: block %q needs content", ErrInvalidItem, blockID)
		}
	default:
		return fmt.Errorf("%w: unknown block type %q", ErrInvalidItem, b.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks.upsert(r.next(), pluginID, blockID, b)
	return nil
}

// RegisterNavbarItem appends a navbar link for pluginID.
func (r *Registry) RegisterNavbarItem(pluginID string, item NavbarItem) error {
	if pluginID == "" {
		return ErrEmptyPluginID
	}
	if strings.TrimSpace(item.Label) == "" {
		return fmt.Errorf("%w: navbar item needs a label", ErrInvalidItem)
	}
	for _, child := range item.Children {
		if strings.TrimSpace(child.Label) == "" {
			return fmt.Errorf("%w: navbar child of %q needs a label", ErrInvalidItem, item.Label)
		}
	}
	item.PluginID = pluginID
	if item.Order == 0 {
		item.Order = DefaultOrder
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.navbar.add(r.next(), pluginID, item)
	return nil
}

// RegisterFooterLinks appends links for pluginID. Either every link is
// valid and all are added, or none is.
func (r *Registry) RegisterFooterLinks(pluginID string, links []FooterLink) error {
	if pluginID == "" {
		return ErrEmptyPluginID
	}
	for i, l := range links {
		if strings.TrimSpace(l.Label) == "" || strings.TrimSpace(l.URL) == "" {
			return fmt.Errorf("%w: footer link %d needs a label and a url", ErrInvalidItem, i)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range links {
		l.PluginID = pluginID
		if l.Order == 0 {
			l.Order = DefaultOrder
		}
		r.footer.add(r.next(), pluginID, l)
	}
	return nil
}

// RegisterPage adds a page for pluginID. Routes are normalised to start
// with a slash.
func (r *Registry) RegisterPage(pluginID string, p Page) error {
	if pluginID == "" {
		return ErrEmptyPluginID
	}
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Route) == "" {
		return fmt.Errorf("%w: page needs a title and a route", ErrInvalidItem)
	}
	p.PluginID = pluginID
	if !strings.HasPrefix(p.Route, "/") {
		p.Route = "/" + p.Route
	}
	if p.Order == 0 {
		p.Order = DefaultOrder
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages.add(r.next(), pluginID, p)
	return nil
}

// RegisterAdminSection adds an admin sidebar section for pluginID.
func (r *Registry) RegisterAdminSection(pluginID string, s AdminSection) error {
	if pluginID == "" {
		return ErrEmptyPluginID
	}
	if strings.TrimSpace(s.Label) == "" {
		return fmt.Errorf("%w: admin section needs a label", ErrInvalidItem)
	}
	for _, it := range s.Items {
		if it.Label == "" || it.Route == "" {
			return fmt.Errorf("%w: admin item in %q needs a label and a route", ErrInvalidItem, s.Label)
		}
	}
	s.PluginID = pluginID
	if s.Order == 0 {
		s.Order = DefaultOrder
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sections.add(r.next(), pluginID, s)
	return nil
}

// Blocks returns every block, restricted to enabled plugins when enabled is
// non-nil, sorted by Order then registration order.
func (r *Registry) Blocks(enabled []string) []Block {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return query(&r.blocks, enabled, nil, func(b Block) int { return b.Order })
}

// BlocksByPosition is Blocks restricted to one slot.
func (r *Registry) BlocksByPosition(position string, enabled []string) []Block {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return query(&r.blocks, enabled,
		func(b Block) bool { return b.Position == position },
		func(b Block) int { return b.Order })
}

func (r *Registry) NavbarItems(enabled []string) []NavbarItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return query(&r.navbar, enabled, nil, func(n NavbarItem) int { return n.Order })
}

func (r *Registry) FooterLinks(enabled []string) []FooterLink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return query(&r.footer, enabled, nil, func(l FooterLink) int { return l.Order })
}

func (r *Registry) Pages(enabled []string) []Page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return query(&r.pages, enabled, nil, func(p Page) int { return p.Order })
}

func (r *Registry) AdminSections(enabled []string) []AdminSection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return query(&r.sections, enabled, nil, func(s AdminSection) int { return s.Order })
}

// Snapshot returns every contribution kind for the given enabled set.
func (r *Registry) Snapshot(enabled []string) Snapshot {
	return Snapshot{
		Blocks:        r.Blocks(enabled),
		Navbar:        r.NavbarItems(enabled),
		Footer:        r.FooterLinks(enabled),
		Pages:         r.Pages(enabled),
		AdminSections: r.AdminSections(enabled),
	}
}

// ClearPlugin drops every contribution of pluginID and returns how many
// were removed.
func (r *Registry) ClearPlugin(pluginID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.blocks.removePlugin(pluginID) +
		r.navbar.removePlugin(pluginID) +
		r.footer.removePlugin(pluginID) +
		r.pages.removePlugin(pluginID) +
		r.sections.removePlugin(pluginID)
	if n > 0 {
		r.logger.Info("plugin contributions cleared", zap.String("plugin", pluginID), zap.Int("count", n))
	}
	return n
}

// ClearAll drops every contribution.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.blocks = list[Block]{}
	r.navbar = list[NavbarItem]{}
	r.footer = list[FooterLink]{}
	r.pages = list[Page]{}
	r.sections = list[AdminSection]{}
}

// next must be called with mu held.
func (r *Registry) next() uint64 {
	r.seq++
	return r.seq
}

type entry[T any] struct {
	seq      uint64
	pluginID string
	key      string
	item     T
}

type list[T any] struct {
	entries []entry[T]
}

func (l *list[T]) add(seq uint64, pluginID string, item T) {
	l.entries = append(l.entries, entry[T]{seq: seq, pluginID: pluginID, item: item})
}

// upsert replaces the entry with the same plugin and key, keeping its
// registration rank, or appends a new one.
func (l *list[T]) upsert(seq uint64, pluginID, key string, item T) {
	for i := range l.entries {
		if l.entries[i].pluginID == pluginID && l.entries[i].key == key {
			l.entries[i].item = item
			return
		}
	}
	l.entries = append(l.entries, entry[T]{seq: seq, pluginID: pluginID, key: key, item: item})
}

func (l *list[T]) removePlugin(pluginID string) int {
	kept := l.entries[:0]
	removed := 0
	for _, e := range l.entries {
		if e.pluginID == pluginID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(l.entries[len(kept):])
	l.entries = kept
	return removed
}

func query[T any](l *list[T], enabled []string, include func(T) bool, order func(T) int) []T {
	var allowed map[string]struct{}
	if enabled != nil {
		allowed = make(map[string]struct{}, len(enabled))
		for _, id := range enabled {
			allowed[id] = struct{}{}
		}
	}

	picked := make([]entry[T], 0, len(l.entries))
	for _, e := range l.entries {
		if allowed != nil {
			if _, ok := allowed[e.pluginID]; !ok {
				continue
			}
		}
		if include != nil && !include(e.item) {
			continue
		}
		picked = append(picked, e)
	}

	sort.SliceStable(picked, func(i, j int) bool {
		oi, oj := order(picked[i].item), order(picked[j].item)
		if oi != oj {
			return oi < oj
		}
		return picked[i].seq < picked[j].seq
	})

	out := make([]T, len(picked))
	for i, e := range picked {
		out[i] = e.item
	}
	return out
}
