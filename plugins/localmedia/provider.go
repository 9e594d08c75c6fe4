// Package localmedia is a built-in plugin storing uploads on the local disk.
package localmedia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/plugin"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/surface"
)

const Ref = "localmedia"

// DriverID is the storage driver this plugin contributes.
const DriverID = "local"

// Setting keys.
const (
	SettingDir     = "dir"
	SettingBaseURL = "base_url"
)

const filesPrefix = "/files/"

var ErrInvalidPath = errors.New("path escapes the media directory")

func init() {
	plugin.Register(Ref, func() plugin.Provider { return New() })
}

type Provider struct {
	id      string
	dir     string
	baseURL string
	logger  *zap.Logger
}

func New() *Provider { return &Provider{} }

func (p *Provider) Boot(_ context.Context, env *plugin.Env) error {
	p.id = env.Manifest.ID
	p.dir = env.Setting(SettingDir, filepath.Join(env.Dir, "storage"))
	p.baseURL = strings.TrimSuffix(env.Setting(SettingBaseURL, "/"+env.Manifest.ID+"/files"), "/")
	p.logger = env.Logger
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}

	if err := env.Hooks.RegisterMediaHook(env.Manifest.ID, p); err != nil {
		return err
	}
	return env.Surfaces.RegisterAdminSection(env.Manifest.ID, surface.AdminSection{
		ID:         "media",
		Label:      "Media",
		Icon:       "image",
		Route:      "/admin/media",
		Permission: "admin.media",
		Order:      60,
	})
}

// RegisterRoutes serves stored files under /<plugin-id>/files/.
func (p *Provider) RegisterRoutes(r *mux.Router) {
	strip := "/" + p.id + strings.TrimSuffix(filesPrefix, "/")
	r.PathPrefix(filesPrefix).Handler(http.StripPrefix(strip, http.FileServer(http.Dir(p.dir))))
}

func (p *Provider) StorageDrivers(context.Context) ([]hooks.StorageDriver, error) {
	return []hooks.StorageDriver{{ID: DriverID, Name: "Local disk"}}, nil
}

func (p *Provider) ImageFilters(context.Context) ([]hooks.ImageFilter, error) {
	return nil, nil
}

// ProcessUpload copies the file at src into the media directory under a
// random name that keeps the original extension.
func (p *Provider) ProcessUpload(ctx context.Context, src string, opts hooks.UploadOptions) (*hooks.Upload, error) {
	subdir := filepath.Clean(filepath.FromSlash(opts.Directory))
	if subdir == "." {
		subdir = ""
	}
	if subdir != "" && !filepath.IsLocal(subdir) {
		return nil, ErrInvalidPath
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer in.Close()

	ext := strings.ToLower(filepath.Ext(src))
	rel := filepath.Join(subdir, uuid.NewString()+ext)
	dst := filepath.Join(p.dir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	size, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst) //nolint:errcheck
		return nil, fmt.Errorf("store upload: %w", err)
	}

	urlPath := filepath.ToSlash(rel)
	p.logger.Info("upload stored", zap.String("path", urlPath), zap.Int64("size", size))
	return &hooks.Upload{
		Path:     urlPath,
		URL:      p.baseURL + "/" + urlPath,
		Size:     size,
		MimeType: mime.TypeByExtension(ext),
	}, nil
}

func (p *Provider) DeleteImage(_ context.Context, rel string) error {
	full, err := p.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("delete %s: %w", rel, err)
	}
	return nil
}

// ImageURL returns the public URL of rel. Requested dimensions are passed
// through as query parameters for the front end to honour.
func (p *Provider) ImageURL(_ context.Context, rel string, opts hooks.ImageOptions) (string, error) {
	if _, err := p.resolve(rel); err != nil {
		return "", err
	}
	u := p.baseURL + "/" + path.Clean(filepath.ToSlash(rel))

	q := url.Values{}
	if opts.Width > 0 {
		q.Set("w", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		q.Set("h", strconv.Itoa(opts.Height))
	}
	if opts.Filter != "" {
		q.Set("filter", opts.Filter)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u, nil
}

func (p *Provider) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if !filepath.IsLocal(clean) {
		return "", ErrInvalidPath
	}
	return filepath.Join(p.dir, clean), nil
}
