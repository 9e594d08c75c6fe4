package hooks

import (
	"context"
	"slices"
)

// AuthHook lets a plugin contribute login providers, two-factor methods and
// credential validation.
type AuthHook interface {
	Providers(ctx context.Context) ([]AuthProvider, error)
	TwoFactorMethods(ctx context.Context) ([]TwoFactorMethod, error)
	ValidateCredentials(ctx context.Context, creds Credentials) (AuthResult, error)
	UserProfile(ctx context.Context, provider, token string) (*UserProfile, error)
}

// AuthProvider is a login option shown on the sign-in page.
type AuthProvider struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Color    string `json:"color,omitempty"`
	LoginURL string `json:"login_url,omitempty"`
	PluginID string `json:"plugin_id"`
}

// TwoFactorMethod is a second factor offered by a plugin.
type TwoFactorMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PluginID    string `json:"plugin_id"`
}

// Credentials are opaque key/value pairs submitted to a plugin validator.
type Credentials map[string]string

// AuthResult is the outcome of a credential check. NotFound is set when the
// target plugin has no auth hook.
type AuthResult struct {
	Success  bool   `json:"success"`
	UserID   string `json:"user_id,omitempty"`
	Error    string `json:"error,omitempty"`
	NotFound bool   `json:"not_found,omitempty"`
}

// UserProfile is the identity returned by an external provider.
type UserProfile struct {
	ID        string         `json:"id"`
	Username  string         `json:"username"`
	Email     string         `json:"email,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// AuthProviders collects the login providers of every auth hook.
func (r *Registry) AuthProviders(ctx context.Context) []AuthProvider {
	return fanOut(r, CategoryAuth, r.auth, "providers", func(pluginID string, h AuthHook) ([]AuthProvider, error) {
		items, err := h.Providers(ctx)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})
}

// TwoFactorMethods collects the second factors of every auth hook.
func (r *Registry) TwoFactorMethods(ctx context.Context) []TwoFactorMethod {
	return fanOut(r, CategoryAuth, r.auth, "two_factor_methods", func(pluginID string, h AuthHook) ([]TwoFactorMethod, error) {
		items, err := h.TwoFactorMethods(ctx)
		items = slices.Clone(items)
		for i := range items {
			items[i].PluginID = pluginID
		}
		return items, err
	})
}

// ValidateCredentials asks pluginID's auth hook to check creds. It always
// returns a record: an unknown plugin yields NotFound, a failing hook yields
// an unsuccessful result carrying the error text.
func (r *Registry) ValidateCredentials(ctx context.Context, pluginID string, creds Credentials) AuthResult {
	res := callOne(r, CategoryAuth, r.auth, pluginID, "validate_credentials", func(h AuthHook) (AuthResult, error) {
		return h.ValidateCredentials(ctx, creds)
	})
	switch res.Outcome {
	case OutcomeNotFound:
		return AuthResult{Success: false, NotFound: true, Error: "authentication plugin not found"}
	case OutcomeFailed:
		return AuthResult{Success: false, Error: res.Err.Error()}
	}
	return res.Value
}

// UserProfile resolves the auth hook that declares provider and asks it for
// the profile behind token. The boolean is false when no hook declares the
// provider or the hook fails.
func (r *Registry) UserProfile(ctx context.Context, provider, token string) (*UserProfile, bool) {
	r.mu.RLock()
	entries := r.auth.snapshot()
	r.mu.RUnlock()

	for _, e := range entries {
		providers, err := safeCall(func() ([]AuthProvider, error) { return e.hook.Providers(ctx) })
		if err != nil {
			r.hookFailed(CategoryAuth, e.pluginID, "providers", err)
			continue
		}
		if !slices.ContainsFunc(providers, func(p AuthProvider) bool { return p.ID == provider }) {
			continue
		}

		res := callOne(r, CategoryAuth, r.auth, e.pluginID, "user_profile", func(h AuthHook) (*UserProfile, error) {
			return h.UserProfile(ctx, provider, token)
		})
		if !res.OK() || res.Value == nil {
			return nil, false
		}
		return res.Value, true
	}
	return nil, false
}
