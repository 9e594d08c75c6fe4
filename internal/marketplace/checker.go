// Package marketplace checks the public plugin index for newer releases of
// installed plugins.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a whole feed fetch.
const DefaultTimeout = 10 * time.Second

// maxIndexSize caps how much of the index response is read.
const maxIndexSize = 4 << 20

// Entry is one plugin release advertised by the index.
type Entry struct {
	ID          string `json:"id"`
	Version     string `json:"version"`
	DownloadURL string `json:"download_url"`
}

// Update describes an installed plugin with a newer release available.
type Update struct {
	ID          string `json:"id"`
	Installed   string `json:"installed"`
	Latest      string `json:"latest"`
	DownloadURL string `json:"download_url,omitempty"`
}

type Checker struct {
	indexURL string
	client   *http.Client
	logger   *zap.Logger
}

type Option func(*Checker)

// WithTimeout bounds each index fetch. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

func NewChecker(indexURL string, logger *zap.Logger, opts ...Option) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Checker{
		indexURL: indexURL,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logger.With(zap.String("component", "marketplace")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Installed is a plugin as the checker sees it. UpdateURL, when set, names
// the plugin's own release feed and replaces the shared index for it.
type Installed struct {
	ID        string
	Version   string
	UpdateURL string
}

// Check compares installed plugins against their release feeds. Each feed is
// fetched once per call. A feed that cannot be reached or read is logged and
// contributes no updates.
func (c *Checker) Check(ctx context.Context, installed []Installed) []Update {
	updates := []Update{}

	var sources []string
	bySource := make(map[string][]Installed)
	for _, p := range installed {
		src := p.UpdateURL
		if src == "" {
			src = c.indexURL
		}
		if src == "" {
			continue
		}
		if _, ok := bySource[src]; !ok {
			sources = append(sources, src)
		}
		bySource[src] = append(bySource[src], p)
	}

	for _, src := range sources {
		entries, err := c.fetch(ctx, src)
		if err != nil {
			c.logger.Warn("plugin index unavailable", zap.String("url", src), zap.Error(err))
			continue
		}
		latest := c.latest(entries)
		for _, p := range bySource[src] {
			if u, ok := newer(p, latest); ok {
				updates = append(updates, u)
			}
		}
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	return updates
}

// latest keeps the highest valid release per plugin id.
func (c *Checker) latest(entries []Entry) map[string]Entry {
	latest := make(map[string]Entry)
	for _, e := range entries {
		v, err := semver.NewVersion(e.Version)
		if err != nil {
			c.logger.Debug("ignoring index entry with bad version", zap.String("plugin", e.ID), zap.String("version", e.Version))
			continue
		}
		if cur, ok := latest[e.ID]; ok {
			if cv, _ := semver.NewVersion(cur.Version); cv != nil && !v.GreaterThan(cv) {
				continue
			}
		}
		latest[e.ID] = e
	}
	return latest
}

func newer(p Installed, latest map[string]Entry) (Update, bool) {
	e, ok := latest[p.ID]
	if !ok {
		return Update{}, false
	}
	iv, err := semver.NewVersion(p.Version)
	if err != nil {
		return Update{}, false
	}
	lv, _ := semver.NewVersion(e.Version)
	if !lv.GreaterThan(iv) {
		return Update{}, false
	}
	return Update{ID: p.ID, Installed: p.Version, Latest: e.Version, DownloadURL: e.DownloadURL}, true
}

// fetch reads a release feed. The client timeout bounds the request.
func (c *Checker) fetch(ctx context.Context, url string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("index request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("index returned status %d", resp.StatusCode)
	}

	var entries []Entry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIndexSize)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return entries, nil
}
