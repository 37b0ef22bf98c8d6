package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/herald/internal/command"
)

const okScript = "#!/bin/sh\ncat >/dev/null\necho '{\"status\":\"ok\"}'\n"

// writeCommand creates <root>/<category>/<stem>.yaml plus an executable
// run-<stem>.sh next to it and returns the manifest path.
func writeCommand(t *testing.T, root, category, stem, manifest, script string) string {
	t.Helper()
	dir := filepath.Join(root, category)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if script != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "run-"+stem+".sh"), []byte(script), 0o755))
	}
	path := filepath.Join(dir, stem+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	return path
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name      string
		setupFn   func(t *testing.T, root string)
		opts      Options
		wantNames []string
		wantErrs  int
		checkFn   func(t *testing.T, plugins []*Plugin, report *Report)
	}{
		{
			name: "valid command discovered with category from directory",
			setupFn: func(t *testing.T, root string) {
				writeCommand(t, root, "tools", "weather", `
name: weather
aliases: [w, forecast]
description: Current weather
usage: .weather <city>
cooldown: 10
entrypoint: run-weather.sh
timeout: 5s
config:
  units: metric
`, okScript)
			},
			wantNames: []string{"weather"},
			checkFn: func(t *testing.T, plugins []*Plugin, _ *Report) {
				p := plugins[0]
				assert.Equal(t, "tools", p.Category)
				assert.Equal(t, []string{"w", "forecast"}, p.Aliases)
				assert.Equal(t, "Current weather", p.Description)
				require.NotNil(t, p.Cooldown)
				assert.Equal(t, 10, *p.Cooldown)
				assert.Equal(t, 5*time.Second, p.Timeout)
				assert.Equal(t, "metric", p.Config["units"])
				assert.True(t, filepath.IsAbs(p.Entrypoint))
			},
		},
		{
			name: "name defaults to file stem",
			setupFn: func(t *testing.T, root string) {
				writeCommand(t, root, "misc", "ping", "entrypoint: run-ping.sh\n", okScript)
			},
			wantNames: []string{"ping"},
		},
		{
			name: "legacy field names unified",
			setupFn: func(t *testing.T, root string) {
				writeCommand(t, root, "system", "addowner", `
command: addowner
help: Add an owner
isOwner: true
botAdmin: true
entrypoint: run-addowner.sh
`, okScript)
			},
			wantNames: []string{"addowner"},
			checkFn: func(t *testing.T, plugins []*Plugin, _ *Report) {
				p := plugins[0]
				assert.Equal(t, "Add an owner", p.Description)
				assert.True(t, p.Owner)
				assert.True(t, p.BotAdmin)
				assert.Nil(t, p.Cooldown)
			},
		},
		{
			name: "broken manifest does not stop loading",
			setupFn: func(t *testing.T, root string) {
				writeCommand(t, root, "a", "broken", "name: [unclosed", "")
				writeCommand(t, root, "a", "noentry", "name: noentry\n", "")
				writeCommand(t, root, "b", "good", "entrypoint: run-good.sh\n", okScript)
			},
			wantNames: []string{"good"},
			wantErrs:  2,
			checkFn: func(t *testing.T, _ []*Plugin, report *Report) {
				for _, le := range report.Errors {
					assert.NotEmpty(t, le.Path)
					assert.Error(t, le.Unwrap())
				}
			},
		},
		{
			name: "disabled category and command never loaded",
			setupFn: func(t *testing.T, root string) {
				writeCommand(t, root, "nsfw", "spicy", "entrypoint: run-spicy.sh\n", okScript)
				writeCommand(t, root, "fun", "joke", "entrypoint: run-joke.sh\n", okScript)
				writeCommand(t, root, "fun", "dice", "name: roll\nentrypoint: run-dice.sh\n", okScript)
				writeCommand(t, root, "fun", "quote", "entrypoint: run-quote.sh\n", okScript)
			},
			opts:      Options{Disabled: []string{"NSFW", "joke", "roll"}},
			wantNames: []string{"quote"},
			checkFn: func(t *testing.T, _ []*Plugin, report *Report) {
				assert.Len(t, report.Disabled, 3)
			},
		},
		{
			name: "non-executable entrypoint rejected",
			setupFn: func(t *testing.T, root string) {
				dir := filepath.Join(root, "tools")
				require.NoError(t, os.MkdirAll(dir, 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(okScript), 0o644))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "x.yaml"), []byte("entrypoint: run.sh\n"), 0o644))
			},
			wantErrs: 1,
		},
		{
			name: "path traversal rejected",
			setupFn: func(t *testing.T, root string) {
				writeCommand(t, root, "tools", "evil", "entrypoint: ../other/run.sh\n", "")
			},
			wantErrs: 1,
		},
		{
			name: "files at root and hidden entries ignored",
			setupFn: func(t *testing.T, root string) {
				require.NoError(t, os.WriteFile(filepath.Join(root, "stray.yaml"), []byte("name: stray\n"), 0o644))
				writeCommand(t, root, ".git", "config", "entrypoint: run-config.sh\n", okScript)
				writeCommand(t, root, "misc", "ping", "entrypoint: run-ping.sh\n", okScript)
				require.NoError(t, os.WriteFile(filepath.Join(root, "misc", "README.md"), []byte("docs"), 0o644))
			},
			wantNames: []string{"ping"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			tt.setupFn(t, root)

			plugins, report, err := Discover([]string{root}, tt.opts)
			require.NoError(t, err)

			var names []string
			for _, p := range plugins {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Len(t, report.Errors, tt.wantErrs)
			if tt.checkFn != nil {
				tt.checkFn(t, plugins, report)
			}
		})
	}
}

func TestDiscoverRoots(t *testing.T) {
	_, _, err := Discover(nil, Options{})
	assert.Error(t, err)

	_, _, err = Discover([]string{filepath.Join(t.TempDir(), "missing")}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, _, err = Discover([]string{file}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestDiscoverManyRootsDedupes(t *testing.T) {
	root := t.TempDir()
	writeCommand(t, root, "misc", "ping", "entrypoint: run-ping.sh\n", okScript)

	plugins, _, err := Discover([]string{root, root + "/", " "}, Options{})
	require.NoError(t, err)
	assert.Len(t, plugins, 1)
}

func TestLoadRegistersDescriptors(t *testing.T) {
	root := t.TempDir()
	writeCommand(t, root, "group", "kick", `
admin: true
bot_admin: true
group: true
cooldown: 0
wait: true
entrypoint: run-kick.sh
`, okScript)
	writeCommand(t, root, "misc", "echo", `
aliases: [say]
entrypoint: run-echo.sh
config:
  upper: false
`, okScript)

	reg := command.NewRegistry(".")
	report, err := Load(reg, []string{root}, Options{
		Timeout: 7 * time.Second,
		Config:  map[string]map[string]any{"echo": {"upper": true}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"kick", "echo"}, report.Loaded)

	kick, ok := reg.Resolve("KICK")
	require.True(t, ok)
	assert.Equal(t, "group", kick.Category)
	assert.True(t, kick.RequiresAdmin)
	assert.True(t, kick.RequiresBotAdmin)
	assert.True(t, kick.RequiresGroup)
	assert.True(t, kick.Wait)
	assert.Equal(t, 0, kick.CooldownSeconds())
	assert.Equal(t, ".kick", kick.Usage)

	echo, ok := reg.Resolve("say")
	require.True(t, ok)
	assert.Equal(t, command.DefaultCooldown, echo.CooldownSeconds())
	h, ok := echo.Handler.(*ExecHandler)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, h.Timeout)
	assert.Equal(t, true, h.Config["upper"])
	assert.Equal(t, filepath.Join(root, "misc", "echo.yaml"), echo.Source)
}

func TestLoadCollisionKeepsFirst(t *testing.T) {
	root := t.TempDir()
	writeCommand(t, root, "a", "help", "aliases: [h]\nentrypoint: run-help.sh\n", okScript)
	writeCommand(t, root, "b", "hello", "aliases: [h]\nentrypoint: run-hello.sh\n", okScript)

	reg := command.NewRegistry(".")
	report, err := Load(reg, []string{root}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"help"}, report.Loaded)
	require.Len(t, report.Errors, 1)
	var dup *command.DuplicateNameError
	assert.True(t, errors.As(report.Errors[0], &dup))

	d, ok := reg.Resolve("h")
	require.True(t, ok)
	assert.Equal(t, "help", d.Name)
	_, ok = reg.Resolve("hello")
	assert.False(t, ok)
}

func TestLoadCollisionWithBuiltin(t *testing.T) {
	root := t.TempDir()
	writeCommand(t, root, "misc", "ping", "entrypoint: run-ping.sh\n", okScript)

	reg := command.NewRegistry(".")
	builtin := reg.MustRegister(&command.Descriptor{
		Name:    "ping",
		Source:  "builtin",
		Handler: command.HandlerFunc(func(_ context.Context, _ *command.Context) error { return nil }),
	})

	report, err := Load(reg, []string{root}, Options{})
	require.NoError(t, err)
	assert.Empty(t, report.Loaded)
	assert.Len(t, report.Errors, 1)

	d, _ := reg.Resolve("ping")
	assert.Same(t, builtin, d)
}

func TestManifestUnmarshalPrefersCanonical(t *testing.T) {
	var m Manifest
	require.NoError(t, yaml.Unmarshal([]byte(`
name: real
command: legacy
description: canonical
help: legacy help
owner: false
is_owner: true
alias: [x]
aliases: [y]
`), &m))

	assert.Equal(t, "real", m.Name)
	assert.Equal(t, "canonical", m.Description)
	assert.False(t, m.Owner)
	assert.Equal(t, []string{"y", "x"}, m.Aliases)
}

func TestValidateManifest(t *testing.T) {
	tests := []struct {
		name     string
		manifest *Manifest
		wantErr  bool
	}{
		{"valid manifest", &Manifest{Name: "test", Entrypoint: "run.sh"}, false},
		{"missing name", &Manifest{Entrypoint: "run.sh"}, true},
		{"name with spaces", &Manifest{Name: "two words", Entrypoint: "run.sh"}, true},
		{"missing entrypoint", &Manifest{Name: "test"}, true},
		{"absolute entrypoint", &Manifest{Name: "test", Entrypoint: "/bin/sh"}, true},
		{"path traversal in entrypoint", &Manifest{Name: "test", Entrypoint: "../evil/run.sh"}, true},
		{"negative cooldown", &Manifest{Name: "test", Entrypoint: "run.sh", Cooldown: command.Seconds(-1)}, true},
		{"negative timeout", &Manifest{Name: "test", Entrypoint: "run.sh", Timeout: -time.Second}, true},
		{"group and private", &Manifest{Name: "test", Entrypoint: "run.sh", Group: true, Private: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateManifest(tt.manifest)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateManifest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTrust(t *testing.T) {
	tests := []struct {
		name    string
		setupFn func(t *testing.T) (entrypoint, catDir, root string)
		wantErr bool
	}{
		{
			name: "valid executable",
			setupFn: func(t *testing.T) (string, string, string) {
				dir := t.TempDir()
				catDir := filepath.Join(dir, "tools")
				require.NoError(t, os.Mkdir(catDir, 0o755))
				entrypoint := filepath.Join(catDir, "run.sh")
				require.NoError(t, os.WriteFile(entrypoint, []byte("#!/bin/sh\n"), 0o755))
				return entrypoint, catDir, dir
			},
		},
		{
			name: "non-executable",
			setupFn: func(t *testing.T) (string, string, string) {
				dir := t.TempDir()
				catDir := filepath.Join(dir, "tools")
				require.NoError(t, os.Mkdir(catDir, 0o755))
				entrypoint := filepath.Join(catDir, "run.sh")
				require.NoError(t, os.WriteFile(entrypoint, []byte("#!/bin/sh\n"), 0o644))
				return entrypoint, catDir, dir
			},
			wantErr: true,
		},
		{
			name: "symlink escaping the root",
			setupFn: func(t *testing.T) (string, string, string) {
				outside := filepath.Join(t.TempDir(), "evil.sh")
				require.NoError(t, os.WriteFile(outside, []byte("#!/bin/sh\n"), 0o755))
				dir := t.TempDir()
				catDir := filepath.Join(dir, "tools")
				require.NoError(t, os.Mkdir(catDir, 0o755))
				entrypoint := filepath.Join(catDir, "run.sh")
				require.NoError(t, os.Symlink(outside, entrypoint))
				return entrypoint, catDir, dir
			},
			wantErr: true,
		},
		{
			name: "world-writable category directory",
			setupFn: func(t *testing.T) (string, string, string) {
				dir := t.TempDir()
				catDir := filepath.Join(dir, "tools")
				require.NoError(t, os.Mkdir(catDir, 0o755))
				if err := os.Chmod(catDir, 0o777); err != nil {
					t.Skip("cannot set world-writable on this filesystem")
				}
				info, _ := os.Stat(catDir)
				if info.Mode().Perm()&0o002 == 0 {
					t.Skip("filesystem does not support world-writable directories")
				}
				entrypoint := filepath.Join(catDir, "run.sh")
				require.NoError(t, os.WriteFile(entrypoint, []byte("#!/bin/sh\n"), 0o755))
				return entrypoint, catDir, dir
			},
			wantErr: true,
		},
		{
			name: "nonexistent entrypoint",
			setupFn: func(t *testing.T) (string, string, string) {
				dir := t.TempDir()
				catDir := filepath.Join(dir, "tools")
				require.NoError(t, os.Mkdir(catDir, 0o755))
				return filepath.Join(catDir, "nonexistent.sh"), catDir, dir
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entrypoint, catDir, root := tt.setupFn(t)
			err := validateTrust(entrypoint, catDir, root)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateTrust() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
