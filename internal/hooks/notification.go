package hooks

import (
	"context"
	"slices"
)

// User is the minimal view of a site member passed to plugin hooks.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// NotificationHook lets a plugin deliver notifications over its own channels.
type NotificationHook interface {
	Channels(ctx context.Context) ([]NotificationChannel, error)
	Send(ctx context.Context, channel string, user User, data map[string]any) error
}

type NotificationChannel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PluginID string `json:"plugin_id"`
}

func (r *Registry) NotificationChannels(ctx context.Context) []NotificationChannel {
	return fanOut(r, CategoryNotification, r.notification, "channels", func(pluginID string, h NotificationHook) ([]NotificationChannel, error) {
		items, err := h.Channels(ctx)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})
}

// SendNotification delivers data to user over pluginID's channel. Value is
// true when the hook accepted the message.
func (r *Registry) SendNotification(ctx context.Context, pluginID, channel string, user User, data map[string]any) Result[bool] {
	return callOne(r, CategoryNotification, r.notification, pluginID, "send", func(h NotificationHook) (bool, error) {
		if err := h.Send(ctx, channel, user, data); err != nil {
			return false, err
		}
		return true, nil
	})
}
