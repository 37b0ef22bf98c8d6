package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override variable.
const EnvPrefix = "HERALD_"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// envOverrides is the flat set of settings that may be replaced from the
// environment. Fields are seeded from the file config so unset variables
// leave values untouched.
type envOverrides struct {
	LogLevel       string   `env:"LOG_LEVEL"`
	LogFormat      string   `env:"LOG_FORMAT"`
	Prefix         string   `env:"PREFIX"`
	Owners         []string `env:"OWNERS" envSeparator:","`
	Disabled       []string `env:"DISABLED" envSeparator:","`
	StatusHandling bool     `env:"STATUS_HANDLING"`
	PluginRoots    []string `env:"PLUGIN_ROOTS" envSeparator:","`
	Transport      string   `env:"TRANSPORT"`
	SelfID         string   `env:"SELF_ID"`
	WebhookSecret  string   `env:"WEBHOOK_SECRET"`
	WebhookSendURL string   `env:"WEBHOOK_SEND_URL"`
	WSURL          string   `env:"WS_URL"`
	WSToken        string   `env:"WS_TOKEN"`
	APIKey         string   `env:"API_KEY"`
	StatePath      string   `env:"STATE_PATH"`
}

// Load reads configuration from a file (or a directory containing
// config.yaml), loads a sibling .env file when present, interpolates ${VAR}
// references, applies HERALD_* overrides and validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	dotenv := filepath.Join(filepath.Dir(absPath), ".env")
	if _, err := os.Stat(dotenv); err == nil {
		// godotenv.Load never overrides variables already set in the process.
		if err := godotenv.Load(dotenv); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath returns the absolute config file path for a file or directory.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := interpolateEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with environment values. Unset variables
// are left as written so config check can report them.
func interpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

func applyEnvOverrides(cfg *Config) error {
	o := envOverrides{
		LogLevel:       cfg.Service.LogLevel,
		LogFormat:      cfg.Service.LogFormat,
		Prefix:         cfg.Bot.Prefix,
		Owners:         cfg.Bot.Owners,
		Disabled:       cfg.Bot.Disabled,
		StatusHandling: cfg.Bot.Features.StatusHandling,
		PluginRoots:    cfg.Plugins.Roots,
		Transport:      cfg.Transport.Kind,
		SelfID:         cfg.Transport.SelfID,
		WebhookSecret:  cfg.Transport.Webhook.Secret,
		WebhookSendURL: cfg.Transport.Webhook.SendURL,
		WSURL:          cfg.Transport.Websocket.URL,
		WSToken:        cfg.Transport.Websocket.Token,
		APIKey:         cfg.API.Auth.APIKey,
		StatePath:      cfg.State.Path,
	}
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	cfg.Service.LogLevel = o.LogLevel
	cfg.Service.LogFormat = o.LogFormat
	cfg.Bot.Prefix = o.Prefix
	cfg.Bot.Owners = o.Owners
	cfg.Bot.Disabled = o.Disabled
	cfg.Bot.Features.StatusHandling = o.StatusHandling
	cfg.Plugins.Roots = o.PluginRoots
	cfg.Transport.Kind = o.Transport
	cfg.Transport.SelfID = o.SelfID
	cfg.Transport.Webhook.Secret = o.WebhookSecret
	cfg.Transport.Webhook.SendURL = o.WebhookSendURL
	cfg.Transport.Websocket.URL = o.WSURL
	cfg.Transport.Websocket.Token = o.WSToken
	cfg.API.Auth.APIKey = o.APIKey
	cfg.State.Path = o.StatePath
	return nil
}

func applyConfigDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Transport.Webhook.SignatureHeader == "" {
		cfg.Transport.Webhook.SignatureHeader = def.Transport.Webhook.SignatureHeader
	}
	if cfg.Transport.Webhook.MaxBodySize == "" {
		cfg.Transport.Webhook.MaxBodySize = def.Transport.Webhook.MaxBodySize
	}
	if cfg.Broadcast.Burst < 1 {
		cfg.Broadcast.Burst = 1
	}
	if cfg.State.LockPath == "" && cfg.State.Path != "" {
		cfg.State.LockPath = filepath.Join(filepath.Dir(cfg.State.Path), "herald.lock")
	}
	cfg.Bot.Owners = trimAll(cfg.Bot.Owners)
	cfg.Bot.Disabled = trimAll(cfg.Bot.Disabled)
	cfg.Plugins.Roots = trimAll(cfg.Plugins.Roots)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.Service.LogLevel] {
		errs = append(errs, fmt.Errorf("service.log_level: invalid value %q (must be debug, info, warn, or error)", cfg.Service.LogLevel))
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("service.log_format: invalid value %q (must be json or text)", cfg.Service.LogFormat))
	}
	if strings.TrimSpace(cfg.Bot.Prefix) == "" {
		errs = append(errs, errors.New("bot.prefix: must not be empty"))
	}
	if len(cfg.Plugins.Roots) == 0 {
		errs = append(errs, errors.New("plugins.roots: at least one root is required"))
	}
	if cfg.Plugins.Timeout <= 0 {
		errs = append(errs, errors.New("plugins.timeout: must be positive"))
	}
	if cfg.Plugins.ReloadInterval < 0 {
		errs = append(errs, errors.New("plugins.reload_interval: must not be negative"))
	}
	if cfg.Cooldown.SweepInterval <= 0 {
		errs = append(errs, errors.New("cooldown.sweep_interval: must be positive"))
	}
	if cfg.Broadcast.Interval < 0 {
		errs = append(errs, errors.New("broadcast.interval: must not be negative"))
	}

	switch cfg.Transport.Kind {
	case "webhook":
		if cfg.Transport.Webhook.Listen == "" {
			errs = append(errs, errors.New("transport.webhook.listen: required"))
		}
		if cfg.Transport.Webhook.Secret == "" {
			errs = append(errs, errors.New("transport.webhook.secret: required"))
		}
		if cfg.Transport.Webhook.SendURL == "" {
			errs = append(errs, errors.New("transport.webhook.send_url: required"))
		}
		if _, err := ParseSize(cfg.Transport.Webhook.MaxBodySize); err != nil {
			errs = append(errs, fmt.Errorf("transport.webhook.max_body_size: %w", err))
		}
	case "websocket":
		if cfg.Transport.Websocket.URL == "" {
			errs = append(errs, errors.New("transport.websocket.url: required"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind: invalid value %q (must be webhook or websocket)", cfg.Transport.Kind))
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			errs = append(errs, errors.New("api.listen: required when api is enabled"))
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			errs = append(errs, errors.New("api.auth: api_key or tokens required when api is enabled"))
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if strings.TrimSpace(tok.Token) == "" {
				errs = append(errs, fmt.Errorf("api.auth.tokens[%d].token: required", i))
			}
		}
	}

	if cfg.State.Path == "" {
		errs = append(errs, errors.New("state.path: required"))
	}

	return errors.Join(errs...)
}

// ParseSize parses human sizes such as "1MB", "512KB" or "2048".
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, errors.New("empty size")
	}
	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

// NormalizeUserID reduces a chat identity to its bare user part:
// "1555:3@s.whatsapp.net", "+1 555" and "1555" all become "1555".
// Phone-style ids (digits with +, spaces, dashes, dots or parentheses) are
// reduced to their digits; other ids are kept as written.
func NormalizeUserID(id string) string {
	id = strings.TrimSpace(id)
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if colon := strings.IndexByte(id, ':'); colon >= 0 {
		id = id[:colon]
	}
	return phoneDigits(id)
}

func phoneDigits(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return id
		}
	}
	if b.Len() == 0 {
		return id
	}
	return b.String()
}
