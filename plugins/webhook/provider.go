// Package webhook is a built-in plugin that delivers notifications to an
// HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/plugin"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/surface"
)

// Ref is the service_provider value that selects this plugin.
const Ref = "webhook"

// DefaultTimeout bounds one delivery.
const DefaultTimeout = 10 * time.Second

// Setting keys. Headers are given as "header.<Name>".
const (
	SettingURL      = "url"
	SettingMethod   = "method"
	SettingChannel  = "channel"
	SettingTemplate = "payload_template"
	headerPrefix    = "header."
)

var ErrNoURL = errors.New("webhook url is not configured")

func init() {
	plugin.Register(Ref, func() plugin.Provider { return New() })
}

// Config holds the configuration of the webhook channel.
type Config struct {
	URL     string
	Method  string
	Channel string
	Headers map[string]string
	// PayloadTemplate renders the request body. Empty means a JSON document.
	PayloadTemplate string
}

func configFrom(env *plugin.Env) Config {
	cfg := Config{
		URL:             env.Setting(SettingURL, ""),
		Method:          env.Setting(SettingMethod, http.MethodPost),
		Channel:         env.Setting(SettingChannel, "webhook"),
		PayloadTemplate: env.Setting(SettingTemplate, ""),
		Headers:         map[string]string{},
	}
	for k, v := range env.Settings {
		if name, ok := strings.CutPrefix(k, headerPrefix); ok && name != "" {
			cfg.Headers[name] = v
		}
	}
	return cfg
}

type Provider struct {
	cfg    Config
	client *http.Client
	tmpl   *template.Template
	logger *zap.Logger
}

func New() *Provider {
	return &Provider{client: &http.Client{Timeout: DefaultTimeout}}
}

func (p *Provider) Boot(_ context.Context, env *plugin.Env) error {
	cfg := configFrom(env)
	if cfg.URL == "" {
		return ErrNoURL
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.PayloadTemplate != "" {
		tmpl, err := template.New("webhook").Parse(cfg.PayloadTemplate)
		if err != nil {
			return fmt.Errorf("invalid payload template: %w", err)
		}
		p.tmpl = tmpl
	}
	p.cfg = cfg
	p.logger = env.Logger
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	if err := env.Hooks.RegisterNotificationHook(env.Manifest.ID, p); err != nil {
		return err
	}
	return env.Surfaces.RegisterAdminSection(env.Manifest.ID, surface.AdminSection{
		ID:         "webhook",
		Label:      "webhook::admin.title",
		Icon:       "webhook",
		Route:      "/admin/plugins/webhook",
		Permission: "admin.plugins",
	})
}

func (p *Provider) Channels(context.Context) ([]hooks.NotificationChannel, error) {
	return []hooks.NotificationChannel{{ID: p.cfg.Channel, Name: "Webhook"}}, nil
}

// Payload is what templates receive and the default JSON body.
type Payload struct {
	Channel   string         `json:"channel"`
	User      hooks.User     `json:"user"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

func (p *Provider) Send(ctx context.Context, channel string, user hooks.User, data map[string]any) error {
	if channel != p.cfg.Channel {
		return fmt.Errorf("unknown channel %q", channel)
	}
	payload := Payload{
		Channel:   channel,
		User:      user,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var body []byte
	if p.tmpl != nil {
		var buf bytes.Buffer
		if err := p.tmpl.Execute(&buf, payload); err != nil {
			return fmt.Errorf("execute payload template: %w", err)
		}
		body = buf.Bytes()
	} else {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, p.cfg.Method, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	p.logger.Debug("webhook delivered", zap.String("user", user.ID), zap.Int("status", resp.StatusCode))
	return nil
}
