package hooks

import (
	"context"
	"slices"
)

// UserHook lets a plugin extend member profiles and account pages.
type UserHook interface {
	UserFields(ctx context.Context) ([]UserField, error)
	ProfileSections(ctx context.Context) ([]ProfileSection, error)
	UserActions(ctx context.Context) ([]UserAction, error)
	UserData(ctx context.Context, user User) (map[string]any, error)
}

// UserField is an extra profile field.
type UserField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	PluginID string `json:"plugin_id"`
}

type ProfileSection struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Component string `json:"component"`
	PluginID  string `json:"plugin_id"`
}

type UserAction struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	URL      string `json:"url"`
	Icon     string `json:"icon,omitempty"`
	PluginID string `json:"plugin_id"`
}

func (r *Registry) UserFields(ctx context.Context) []UserField {
	return fanOut(r, CategoryUser, r.user, "user_fields", func(pluginID string, h UserHook) ([]UserField, error) {
		items, err := h.UserFields(ctx)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})
}

func (r *Registry) ProfileSections(ctx context.Context) []ProfileSection {
	return fanOut(r, CategoryUser, r.user, "profile_sections", func(pluginID string, h UserHook) ([]ProfileSection, error) {
		items, err := h.ProfileSections(ctx)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})
}

func (r *Registry) UserActions(ctx context.Context) []UserAction {
	return fanOut(r, CategoryUser, r.user, "user_actions", func(pluginID string, h UserHook) ([]UserAction, error) {
		items, err := h.UserActions(ctx)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})
}

// UserData collects per-plugin data about user, keyed by plugin id. Plugins
// that fail or return nothing are absent from the map.
func (r *Registry) UserData(ctx context.Context, user User) map[string]map[string]any {
	type pluginData struct {
		pluginID string
		data     map[string]any
	}
	collected := fanOut(r, CategoryUser, r.user, "user_data", func(pluginID string, h UserHook) ([]pluginData, error) {
		data, err := h.UserData(ctx, user)
		if err != nil || len(data) == 0 {
			return nil, err
		}
		return []pluginData{{pluginID: pluginID, data: data}}, nil
	})

	out := make(map[string]map[string]any, len(collected))
	for _, c := range collected {
		out[c.pluginID] = c.data
	}
	return out
}
