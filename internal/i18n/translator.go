// Package i18n holds the translation catalogs plugins ship under
// resources/lang and resolves "namespace::key" lookups against them.
package i18n

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// LangParam is the query parameter that overrides Accept-Language.
const LangParam = "lang"

// catalog is one namespace: locale to flattened messages.
type catalog map[language.Tag]map[string]string

// Translator resolves namespaced message keys. Locale files live either at
// <dir>/<locale>.(yaml|yml|json), whose keys are used as-is, or at
// <dir>/<locale>/<group>.(yaml|yml|json), whose keys are prefixed with
// "<group>.". Nested maps are flattened with dots.
type Translator struct {
	mu       sync.RWMutex
	fallback language.Tag
	catalogs map[string]catalog
	logger   *zap.Logger
}

func NewTranslator(fallback string, logger *zap.Logger) (*Translator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tag, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("parse fallback locale %q: %w", fallback, err)
	}
	return &Translator{
		fallback: tag,
		catalogs: make(map[string]catalog),
		logger:   logger.With(zap.String("component", "i18n")),
	}, nil
}

func (t *Translator) Fallback() language.Tag { return t.fallback }

// Load reads every locale under dir into namespace ns, replacing what ns
// held before.
func (t *Translator) Load(ns, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read translations for %s: %w", ns, err)
	}

	cat := catalog{}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)

		if entry.IsDir() {
			tag, err := language.Parse(name)
			if err != nil {
				return fmt.Errorf("translations for %s: %q is not a locale: %w", ns, name, err)
			}
			groups, err := os.ReadDir(path)
			if err != nil {
				return fmt.Errorf("read translations for %s/%s: %w", ns, name, err)
			}
			for _, g := range groups {
				group, ok := trimExt(g.Name())
				if g.IsDir() || !ok {
					continue
				}
				if err := cat.loadFile(tag, filepath.Join(path, g.Name()), group+"."); err != nil {
					return fmt.Errorf("translations for %s: %w", ns, err)
				}
			}
			continue
		}

		locale, ok := trimExt(name)
		if !ok {
			continue
		}
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("translations for %s: %q is not a locale: %w", ns, locale, err)
		}
		if err := cat.loadFile(tag, path, ""); err != nil {
			return fmt.Errorf("translations for %s: %w", ns, err)
		}
	}

	t.mu.Lock()
	t.catalogs[ns] = cat
	t.mu.Unlock()
	t.logger.Debug("translations loaded", zap.String("namespace", ns), zap.Int("locales", len(cat)))
	return nil
}

func (t *Translator) Remove(ns string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.catalogs, ns)
}

// Locales lists the locales ns has messages for, sorted.
func (t *Translator) Locales(ns string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := []string{}
	for tag := range t.catalogs[ns] {
		out = append(out, tag.String())
	}
	sort.Strings(out)
	return out
}

// T translates key ("namespace::message.key") for locale. Placeholders of
// the form :name are replaced from params. The best matching locale of the
// namespace is tried first, then the fallback locale; a key that is found
// nowhere is returned unchanged.
func (t *Translator) T(locale, key string, params map[string]string) string {
	ns, msgKey, ok := strings.Cut(key, "::")
	if !ok {
		return key
	}

	t.mu.RLock()
	cat := t.catalogs[ns]
	t.mu.RUnlock()
	if len(cat) == 0 {
		return key
	}

	msg, found := cat.lookup(t.match(cat, locale), msgKey)
	if !found {
		msg, found = cat.lookup(t.fallback, msgKey)
	}
	if !found {
		return key
	}
	return substitute(msg, params)
}

func (t *Translator) match(cat catalog, locale string) language.Tag {
	desired, err := language.Parse(locale)
	if err != nil {
		return t.fallback
	}
	tags := make([]language.Tag, 0, len(cat)+1)
	tags = append(tags, t.fallback)
	for tag := range cat {
		if tag != t.fallback {
			tags = append(tags, tag)
		}
	}
	// Map iteration is random; keep the candidate list stable.
	sort.Slice(tags[1:], func(i, j int) bool { return tags[i+1].String() < tags[j+1].String() })

	_, idx, conf := language.NewMatcher(tags).Match(desired)
	if conf == language.No {
		return t.fallback
	}
	return tags[idx]
}

// ResolveLocale picks the request locale: the lang query parameter, then
// Accept-Language, then the fallback.
func (t *Translator) ResolveLocale(r *http.Request) string {
	if v := strings.TrimSpace(r.URL.Query().Get(LangParam)); v != "" {
		if tag, err := language.Parse(v); err == nil {
			return tag.String()
		}
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			return tags[0].String()
		}
	}
	return t.fallback.String()
}

func (c catalog) lookup(tag language.Tag, key string) (string, bool) {
	msgs, ok := c[tag]
	if !ok {
		return "", false
	}
	msg, ok := msgs[key]
	return msg, ok
}

func (c catalog) loadFile(tag language.Tag, path, prefix string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var raw map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	msgs, ok := c[tag]
	if !ok {
		msgs = make(map[string]string)
		c[tag] = msgs
	}
	flatten(prefix, raw, msgs)
	return nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		switch val := v.(type) {
		case map[string]any:
			flatten(prefix+k+".", val, out)
		case string:
			out[prefix+k] = val
		case nil:
		default:
			out[prefix+k] = fmt.Sprint(val)
		}
	}
}

func trimExt(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".yaml", ".yml", ".json":
		return strings.TrimSuffix(name, filepath.Ext(name)), true
	}
	return "", false
}

// substitute replaces :name placeholders. Longer names go first.
func substitute(msg string, params map[string]string) string {
	if len(params) == 0 {
		return msg
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, k := range names {
		msg = strings.ReplaceAll(msg, ":"+k, params[k])
	}
	return msg
}
