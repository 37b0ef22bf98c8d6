package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
bot:
  prefix: "!"
  owners: ["15550001111", "15550002222@s.whatsapp.net"]
transport:
  kind: webhook
  webhook:
    secret: s3cret
    send_url: http://127.0.0.1:9000
state:
  path: ./data/test.db
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config keeps defaults",
			yaml: baseYAML,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "!", cfg.Bot.Prefix)
				assert.Equal(t, "info", cfg.Service.LogLevel)
				assert.Equal(t, []string{"./plugins"}, cfg.Plugins.Roots)
				assert.Equal(t, 30*time.Second, cfg.Plugins.Timeout)
				assert.Equal(t, time.Minute, cfg.Cooldown.SweepInterval)
				assert.Equal(t, "X-Herald-Signature", cfg.Transport.Webhook.SignatureHeader)
				assert.Equal(t, time.Second, cfg.Broadcast.Interval)
				assert.Equal(t, 1, cfg.Broadcast.Burst)
				assert.True(t, cfg.Bot.Features.Blocklist)
				assert.False(t, cfg.Bot.Features.StatusHandling)
			},
		},
		{
			name: "env var interpolation",
			yaml: `
bot:
  prefix: "."
transport:
  kind: websocket
  websocket:
    url: ${TEST_HERALD_WS}
    token: ${TEST_HERALD_TOKEN}
state:
  path: ./x.db
`,
			env: map[string]string{
				"TEST_HERALD_WS":    "ws://bridge:7000/ws",
				"TEST_HERALD_TOKEN": "tok",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "ws://bridge:7000/ws", cfg.Transport.Websocket.URL)
				assert.Equal(t, "tok", cfg.Transport.Websocket.Token)
			},
		},
		{
			name: "HERALD_ overrides win over file values",
			yaml: baseYAML,
			env: map[string]string{
				"HERALD_PREFIX":          "#",
				"HERALD_OWNERS":          "1,2",
				"HERALD_DISABLED":        "games, nsfw",
				"HERALD_LOG_LEVEL":       "DEBUG",
				"HERALD_STATUS_HANDLING": "true",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "#", cfg.Bot.Prefix)
				assert.Equal(t, []string{"1", "2"}, cfg.Bot.Owners)
				assert.Equal(t, []string{"games", "nsfw"}, cfg.Bot.Disabled)
				assert.Equal(t, "debug", cfg.Service.LogLevel)
				assert.True(t, cfg.Bot.Features.StatusHandling)
			},
		},
		{
			name: "durations parse",
			yaml: baseYAML + `
plugins:
  roots: [./a, ./b]
  timeout: 5s
  reload_interval: 0s
cooldown:
  sweep_interval: 30s
broadcast:
  interval: 250ms
  burst: 3
`,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"./a", "./b"}, cfg.Plugins.Roots)
				assert.Equal(t, 5*time.Second, cfg.Plugins.Timeout)
				assert.Equal(t, time.Duration(0), cfg.Plugins.ReloadInterval)
				assert.Equal(t, 30*time.Second, cfg.Cooldown.SweepInterval)
				assert.Equal(t, 250*time.Millisecond, cfg.Broadcast.Interval)
				assert.Equal(t, 3, cfg.Broadcast.Burst)
			},
		},
		{
			name: "empty prefix rejected",
			yaml: `
bot:
  prefix: ""
transport:
  kind: websocket
  websocket:
    url: ws://x
state:
  path: ./x.db
`,
			wantErr: "bot.prefix",
		},
		{
			name: "unknown transport rejected",
			yaml: `
transport:
  kind: carrier-pigeon
state:
  path: ./x.db
`,
			wantErr: "transport.kind",
		},
		{
			name: "webhook without secret rejected",
			yaml: `
transport:
  kind: webhook
  webhook:
    send_url: http://x
state:
  path: ./x.db
`,
			wantErr: "transport.webhook.secret",
		},
		{
			name: "enabled api requires a token",
			yaml: baseYAML + `
api:
  enabled: true
`,
			wantErr: "api.auth",
		},
		{
			name: "invalid log level",
			yaml: baseYAML + `
service:
  log_level: chatty
`,
			wantErr: "service.log_level",
		},
		{
			name:    "malformed yaml",
			yaml:    "bot: [unclosed",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	path := writeConfig(t, baseYAML)

	cfg, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, "!", cfg.Bot.Prefix)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadDotEnv(t *testing.T) {
	path := writeConfig(t, `
transport:
  kind: webhook
  webhook:
    secret: ${TEST_HERALD_DOTENV_SECRET}
    send_url: http://127.0.0.1:9000
state:
  path: ./x.db
`)
	envFile := filepath.Join(filepath.Dir(path), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_HERALD_DOTENV_SECRET=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TEST_HERALD_DOTENV_SECRET") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Transport.Webhook.Secret)
}

func TestInterpolateEnvKeepsUnset(t *testing.T) {
	t.Setenv("TEST_HERALD_SET", "yes")
	got := interpolateEnv("a=${TEST_HERALD_SET} b=${TEST_HERALD_NEVER_SET_123}")
	assert.Equal(t, "a=yes b=${TEST_HERALD_NEVER_SET_123}", got)
}

func TestOwnerSet(t *testing.T) {
	cfg := Defaults()
	cfg.Bot.Owners = []string{"15550001111", "15550002222@s.whatsapp.net", "15550003333:12@s.whatsapp.net", " "}

	owners := cfg.OwnerSet()
	assert.Len(t, owners, 3)
	assert.Contains(t, owners, "15550001111")
	assert.Contains(t, owners, "15550002222")
	assert.Contains(t, owners, "15550003333")
}

func TestNormalizeUserID(t *testing.T) {
	tests := map[string]string{
		"1555":                    "1555",
		"1555@s.whatsapp.net":     "1555",
		"1555:7@s.whatsapp.net":   "1555",
		"120363000000000000@g.us": "120363000000000000",
		"  1555@s.whatsapp.net  ": "1555",
		"":                        "",
		"+15550001111":            "15550001111",
		"+1 555-000-0001":         "15550000001",
		"+1 (555) 000.0001":       "15550000001",
		"owner-bot":               "owner-bot",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeUserID(in), in)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1MB", 1 << 20, false},
		{"512kb", 512 << 10, false},
		{"2048", 2048, false},
		{"10 B", 10, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-1MB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "tools")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	file := filepath.Join(sub, "ping.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: ping\n"), 0o644))

	first, err := Fingerprint(dir)
	require.NoError(t, err)
	again, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, os.WriteFile(file, []byte("name: pong\n"), 0o644))
	edited, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, edited)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "echo.yaml"), []byte("name: echo\n"), 0o644))
	added, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.NotEqual(t, edited, added)

	_, err = Fingerprint(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestComputeBlake3Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("herald"), 0o600))

	h, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Len(t, h, 64)
}
