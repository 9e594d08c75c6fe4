package hooks

import (
	"context"
	"slices"
	"sort"
)

// SearchHook lets a plugin expose its content to the site search.
type SearchHook interface {
	SearchableTypes(ctx context.Context) ([]SearchableType, error)
	Search(ctx context.Context, query string, limit int, types []string) ([]SearchResult, error)
}

type SearchableType struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	PluginID string `json:"plugin_id"`
}

type SearchResult struct {
	Type     string  `json:"type"`
	Title    string  `json:"title"`
	Excerpt  string  `json:"excerpt,omitempty"`
	URL      string  `json:"url"`
	Score    float64 `json:"score"`
	PluginID string  `json:"plugin_id"`
}

func (r *Registry) SearchableTypes(ctx context.Context) []SearchableType {
	return fanOut(r, CategorySearch, r.search, "searchable_types", func(pluginID string, h SearchHook) ([]SearchableType, error) {
		items, err := h.SearchableTypes(ctx)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})
}

// Search queries every search hook, merges the hits by descending score and
// keeps at most limit of them. A limit of zero or less keeps everything.
func (r *Registry) Search(ctx context.Context, query string, limit int, types []string) []SearchResult {
	results := fanOut(r, CategorySearch, r.search, "search", func(pluginID string, h SearchHook) ([]SearchResult, error) {
		items, err := h.Search(ctx, query, limit, types)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
