package config

import "time"

// Config represents the complete herald configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Bot       BotConfig       `yaml:"bot"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Cooldown  CooldownConfig  `yaml:"cooldown"`
	Transport TransportConfig `yaml:"transport"`
	API       APIConfig       `yaml:"api,omitempty"`
	State     StateConfig     `yaml:"state"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name           string        `yaml:"name"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	AuditRetention time.Duration `yaml:"audit_retention"`
}

// BotConfig is the immutable startup input consumed by the command core.
type BotConfig struct {
	Prefix string `yaml:"prefix"`
	// Owners lists the globally privileged identities. Bare numbers and full
	// chat ids are both accepted.
	Owners []string `yaml:"owners"`
	// Disabled names categories or commands that plugin discovery skips.
	Disabled []string       `yaml:"disabled,omitempty"`
	Features FeaturesConfig `yaml:"features"`
}

// FeaturesConfig holds per-feature toggles.
type FeaturesConfig struct {
	StatusHandling bool `yaml:"status_handling"`
	Blocklist      bool `yaml:"blocklist"`
	Audit          bool `yaml:"audit"`
}

// PluginsConfig defines where command manifests are discovered.
type PluginsConfig struct {
	Roots          []string                  `yaml:"roots"`
	Timeout        time.Duration             `yaml:"timeout"`
	ReloadInterval time.Duration             `yaml:"reload_interval"`
	Config         map[string]map[string]any `yaml:"config,omitempty"`
}

// CooldownConfig defines cooldown ledger maintenance.
type CooldownConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// TransportConfig selects and configures the messaging bridge adapter.
type TransportConfig struct {
	Kind      string                 `yaml:"kind"` // webhook | websocket
	SelfID    string                 `yaml:"self_id"`
	Webhook   WebhookTransportConfig `yaml:"webhook,omitempty"`
	Websocket WebsocketConfig        `yaml:"websocket,omitempty"`
}

// WebhookTransportConfig configures the HTTP ingress/egress bridge.
type WebhookTransportConfig struct {
	Listen          string `yaml:"listen"`
	Secret          string `yaml:"secret"`
	SendURL         string `yaml:"send_url"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     string `yaml:"max_body_size"`
}

// WebsocketConfig configures the websocket bridge client.
type WebsocketConfig struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// StateConfig defines local state storage settings.
type StateConfig struct {
	Path     string `yaml:"path"`
	LockPath string `yaml:"lock_path"`
}

// BroadcastConfig defines fan-out pacing.
type BroadcastConfig struct {
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:           "herald",
			LogLevel:       "info",
			LogFormat:      "json",
			AuditRetention: 30 * 24 * time.Hour,
		},
		Bot: BotConfig{
			Prefix: ".",
			Features: FeaturesConfig{
				Blocklist: true,
				Audit:     true,
			},
		},
		Plugins: PluginsConfig{
			Roots:          []string{"./plugins"},
			Timeout:        30 * time.Second,
			ReloadInterval: 10 * time.Second,
		},
		Cooldown: CooldownConfig{
			SweepInterval: time.Minute,
		},
		Transport: TransportConfig{
			Kind: "webhook",
			Webhook: WebhookTransportConfig{
				Listen:          "127.0.0.1:8081",
				SignatureHeader: "X-Herald-Signature",
				MaxBodySize:     "1MB",
			},
			Websocket: WebsocketConfig{
				ReconnectDelay: 5 * time.Second,
				RequestTimeout: 30 * time.Second,
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		State: StateConfig{
			Path:     "./data/herald.db",
			LockPath: "./data/herald.lock",
		},
		Broadcast: BroadcastConfig{
			Interval: time.Second,
			Burst:    1,
		},
	}
}

// OwnerSet returns the configured owners normalized to bare user ids.
func (c *Config) OwnerSet() map[string]struct{} {
	out := make(map[string]struct{}, len(c.Bot.Owners))
	for _, o := range c.Bot.Owners {
		if id := NormalizeUserID(o); id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}
