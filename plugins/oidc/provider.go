// Package oidc is a built-in auth plugin that signs members in through an
// OpenID Connect identity provider.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/httputil"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/plugin"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/surface"
)

// Ref is the service_provider value that selects this plugin.
const Ref = "oidc"

// DefaultTimeout bounds discovery, key and token requests.
const DefaultTimeout = 10 * time.Second

const stateTTL = 10 * time.Minute

// Setting keys.
const (
	SettingIssuer       = "issuer"
	SettingClientID     = "client_id"
	SettingClientSecret = "client_secret"
	SettingRedirectURL  = "redirect_url"
	SettingProviderID   = "provider_id"
	SettingProviderName = "provider_name"
	SettingScopes       = "scopes"
)

var (
	ErrNotConfigured   = errors.New("oidc issuer and client_id are required")
	ErrUnknownProvider = errors.New("unknown oidc provider")
	ErrMissingCode     = errors.New("missing authorization code")
	ErrNoIDToken       = errors.New("no id_token in token response")
)

func init() {
	plugin.Register(Ref, func() plugin.Provider { return New() })
}

// Config holds the client registration at the identity provider.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	ProviderID   string
	ProviderName string
	Scopes       []string
}

func configFrom(env *plugin.Env) Config {
	cfg := Config{
		Issuer:       env.Setting(SettingIssuer, ""),
		ClientID:     env.Setting(SettingClientID, ""),
		ClientSecret: env.Setting(SettingClientSecret, ""),
		RedirectURL:  env.Setting(SettingRedirectURL, ""),
		ProviderID:   env.Setting(SettingProviderID, "oidc"),
		ProviderName: env.Setting(SettingProviderName, "OpenID Connect"),
	}
	for _, s := range strings.Split(env.Setting(SettingScopes, "openid,profile,email"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Scopes = append(cfg.Scopes, s)
		}
	}
	if len(cfg.Scopes) == 0 || cfg.Scopes[0] != oidc.ScopeOpenID {
		cfg.Scopes = append([]string{oidc.ScopeOpenID}, cfg.Scopes...)
	}
	return cfg
}

type Provider struct {
	pluginID string
	cfg      Config
	client   *http.Client
	oauthCfg oauth2.Config
	verifier *oidc.IDTokenVerifier
	logger   *zap.Logger

	mu     sync.Mutex
	states map[string]time.Time
}

func New() *Provider {
	return &Provider{
		client: &http.Client{Timeout: DefaultTimeout},
		states: make(map[string]time.Time),
	}
}

// Boot discovers the issuer and registers the auth hook.
func (p *Provider) Boot(ctx context.Context, env *plugin.Env) error {
	cfg := configFrom(env)
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return ErrNotConfigured
	}
	p.logger = env.Logger
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.pluginID = env.Manifest.ID

	// The provider keeps this context for later key fetches.
	provider, err := oidc.NewProvider(p.clientContext(context.WithoutCancel(ctx)), cfg.Issuer)
	if err != nil {
		return fmt.Errorf("discover oidc issuer: %w", err)
	}
	p.cfg = cfg
	p.oauthCfg = oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.Scopes,
	}
	p.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	if err := env.Hooks.RegisterAuthHook(p.pluginID, p); err != nil {
		return err
	}
	return env.Surfaces.RegisterAdminSection(p.pluginID, surface.AdminSection{
		ID:         "oidc",
		Label:      p.pluginID + "::admin.title",
		Icon:       "key",
		Route:      "/admin/plugins/" + p.pluginID,
		Permission: "admin.plugins",
	})
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, p.client)
}

// RegisterRoutes serves the browser side of the authorization code flow.
func (p *Provider) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/authorize", p.handleAuthorize).Methods(http.MethodGet)
	r.HandleFunc("/callback", p.handleCallback).Methods(http.MethodGet)
}

func (p *Provider) Providers(context.Context) ([]hooks.AuthProvider, error) {
	return []hooks.AuthProvider{{
		ID:       p.cfg.ProviderID,
		Name:     p.cfg.ProviderName,
		Icon:     "openid",
		LoginURL: "/" + p.pluginID + "/authorize",
	}}, nil
}

func (p *Provider) TwoFactorMethods(context.Context) ([]hooks.TwoFactorMethod, error) {
	return nil, nil
}

// ValidateCredentials accepts an authorization code under "code" and, when
// present, checks the "state" issued by /authorize.
func (p *Provider) ValidateCredentials(ctx context.Context, creds hooks.Credentials) (hooks.AuthResult, error) {
	if state, ok := creds["state"]; ok && !p.consumeState(state) {
		return hooks.AuthResult{Error: "invalid state parameter"}, nil
	}
	profile, err := p.profile(ctx, creds["code"])
	if err != nil {
		return hooks.AuthResult{Error: err.Error()}, nil
	}
	return hooks.AuthResult{Success: true, UserID: profile.ID}, nil
}

// UserProfile exchanges an authorization code and maps the verified ID token
// claims to a profile.
func (p *Provider) UserProfile(ctx context.Context, provider, code string) (*hooks.UserProfile, error) {
	if provider != p.cfg.ProviderID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return p.profile(ctx, code)
}

type idClaims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

func (p *Provider) profile(ctx context.Context, code string) (*hooks.UserProfile, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	ctx = p.clientContext(ctx)

	token, err := p.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, ErrNoIDToken
	}
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}
	all := map[string]any{}
	if err := idToken.Claims(&all); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Name
	}
	if username == "" {
		username, _, _ = strings.Cut(claims.Email, "@")
	}
	return &hooks.UserProfile{
		ID:        idToken.Subject,
		Username:  username,
		Email:     claims.Email,
		AvatarURL: claims.Picture,
		Raw:       all,
	}, nil
}

func (p *Provider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	state, err := p.newState()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}
	http.Redirect(w, r, p.oauthCfg.AuthCodeURL(state), http.StatusFound)
}

func (p *Provider) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !p.consumeState(q.Get("state")) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid state parameter")
		return
	}
	if e := q.Get("error"); e != "" {
		httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("oidc error: %s - %s", e, q.Get("error_description")))
		return
	}

	profile, err := p.profile(r.Context(), q.Get("code"))
	if err != nil {
		p.logger.Warn("oidc callback failed", zap.Error(err))
		status := http.StatusUnauthorized
		if errors.Is(err, ErrMissingCode) {
			status = http.StatusBadRequest
		}
		httputil.WriteError(w, status, "authentication failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"provider": p.cfg.ProviderID,
		"profile":  profile,
	})
}

func (p *Provider) newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, exp := range p.states {
		if now.After(exp) {
			delete(p.states, k)
		}
	}
	p.states[state] = now.Add(stateTTL)
	return state, nil
}

// consumeState reports whether state was issued and unexpired, and forgets it.
func (p *Provider) consumeState(state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	exp, ok := p.states[state]
	if !ok {
		return false
	}
	delete(p.states, state)
	return time.Now().Before(exp)
}
