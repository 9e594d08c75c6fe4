package hooks

import (
	"context"
	"slices"
)

// MediaHook lets a plugin provide storage backends and image processing.
type MediaHook interface {
	StorageDrivers(ctx context.Context) ([]StorageDriver, error)
	ImageFilters(ctx context.Context) ([]ImageFilter, error)
	ProcessUpload(ctx context.Context, path string, opts UploadOptions) (*Upload, error)
	DeleteImage(ctx context.Context, path string) error
	ImageURL(ctx context.Context, path string, opts ImageOptions) (string, error)
}

type StorageDriver struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PluginID string `json:"plugin_id"`
}

type ImageFilter struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PluginID string `json:"plugin_id"`
}

// UploadOptions tune how an uploaded file is stored.
type UploadOptions struct {
	Directory string   `json:"directory,omitempty"`
	Filters   []string `json:"filters,omitempty"`
	Public    bool     `json:"public"`
}

// Upload describes a stored file.
type Upload struct {
	Path     string `json:"path"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// ImageOptions select a rendition of a stored image.
type ImageOptions struct {
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Filter string `json:"filter,omitempty"`
}

func (r *Registry) StorageDrivers(ctx context.Context) []StorageDriver {
	return fanOut(r, CategoryMedia, r.media, "storage_drivers", func(pluginID string, h MediaHook) ([]StorageDriver, error) {
		items, err := h.StorageDrivers(ctx)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})
}

func (r *Registry) ImageFilters(ctx context.Context) []ImageFilter {
	return fanOut(r, CategoryMedia, r.media, "image_filters", func(pluginID string, h MediaHook) ([]ImageFilter, error) {
		items, err := h.ImageFilters(ctx)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})
}

// ProcessUpload hands the file at path to pluginID's media hook.
func (r *Registry) ProcessUpload(ctx context.Context, pluginID, path string, opts UploadOptions) Result[*Upload] {
	return callOne(r, CategoryMedia, r.media, pluginID, "process_upload", func(h MediaHook) (*Upload, error) {
		return h.ProcessUpload(ctx, path, opts)
	})
}

// DeleteImage removes path through pluginID's media hook. Value is true when
// the hook reported success.
func (r *Registry) DeleteImage(ctx context.Context, pluginID, path string) Result[bool] {
	return callOne(r, CategoryMedia, r.media, pluginID, "delete_image", func(h MediaHook) (bool, error) {
		if err := h.DeleteImage(ctx, path); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (r *Registry) ImageURL(ctx context.Context, pluginID, path string, opts ImageOptions) Result[string] {
	return callOne(r, CategoryMedia, r.media, pluginID, "image_url", func(h MediaHook) (string, error) {
		return h.ImageURL(ctx, path, opts)
	})
}
