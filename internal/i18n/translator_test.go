package i18n

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLang(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newBlogTranslator(t *testing.T) *Translator {
	t.Helper()
	dir := t.TempDir()
	writeLang(t, dir, "en.yaml", "welcome: \"Welcome, :name\"\nposts:\n  empty: No posts yet\n")
	writeLang(t, dir, "fr.json", `{"welcome": "Bienvenue, :name"}`)
	writeLang(t, dir, "fr/admin.yaml", "title: Administration du blog\n")
	writeLang(t, dir, "README.md", "ignored")

	tr, err := NewTranslator("en", nil)
	require.NoError(t, err)
	require.NoError(t, tr.Load("blog", dir))
	return tr
}

func TestT(t *testing.T) {
	tr := newBlogTranslator(t)
	params := map[string]string{"name": "Steve"}

	assert.Equal(t, "Welcome, Steve", tr.T("en", "blog::welcome", params))
	assert.Equal(t, "Bienvenue, Steve", tr.T("fr", "blog::welcome", params))
	assert.Equal(t, "Bienvenue, Steve", tr.T("fr-CA", "blog::welcome", params))
	assert.Equal(t, "Administration du blog", tr.T("fr", "blog::admin.title", nil))
	assert.Equal(t, "No posts yet", tr.T("en", "blog::posts.empty", nil))
}

func TestT_FallsBack(t *testing.T) {
	tr := newBlogTranslator(t)

	// Missing in French, present in the fallback locale.
	assert.Equal(t, "No posts yet", tr.T("fr", "blog::posts.empty", nil))
	// Unsupported locale.
	assert.Equal(t, "No posts yet", tr.T("de", "blog::posts.empty", nil))
	// Garbage locale.
	assert.Equal(t, "No posts yet", tr.T("!!", "blog::posts.empty", nil))
	// Unknown key, unknown namespace and a key without namespace.
	assert.Equal(t, "blog::nope", tr.T("en", "blog::nope", nil))
	assert.Equal(t, "shop::welcome", tr.T("en", "shop::welcome", nil))
	assert.Equal(t, "welcome", tr.T("en", "welcome", nil))
}

func TestLoad_RejectsBadLocale(t *testing.T) {
	dir := t.TempDir()
	writeLang(t, dir, "not_a_locale!.yaml", "a: b\n")

	tr, err := NewTranslator("en", nil)
	require.NoError(t, err)
	assert.Error(t, tr.Load("blog", dir))
}

func TestRemove(t *testing.T) {
	tr := newBlogTranslator(t)
	assert.Equal(t, []string{"en", "fr"}, tr.Locales("blog"))

	tr.Remove("blog")
	assert.Empty(t, tr.Locales("blog"))
	assert.Equal(t, "blog::welcome", tr.T("en", "blog::welcome", nil))
}

func TestResolveLocale(t *testing.T) {
	tr, err := NewTranslator("en", nil)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/?lang=fr", nil)
	r.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	assert.Equal(t, "fr", tr.ResolveLocale(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	assert.Equal(t, "de-DE", tr.ResolveLocale(r))

	assert.Equal(t, "en", tr.ResolveLocale(httptest.NewRequest("GET", "/", nil)))
}

func TestNewTranslatorRejectsBadFallback(t *testing.T) {
	_, err := NewTranslator("!!", nil)
	assert.Error(t, err)
}
