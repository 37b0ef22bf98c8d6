package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/herald/internal/command"
)

// DefaultTimeout bounds a plugin run when neither the manifest nor Options
// set one.
const DefaultTimeout = 30 * time.Second

// LoadError reports a manifest that was skipped during discovery.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Plugin is a validated manifest together with its resolved locations.
type Plugin struct {
	Manifest
	Category     string // name of the directory holding the manifest
	ManifestPath string // absolute path of the manifest file
	Dir          string // absolute category directory
	Entrypoint   string // absolute path to the executable
}

// Options controls discovery.
type Options struct {
	// Disabled lists category or command names to skip, case-insensitive.
	Disabled []string
	// Timeout applies to manifests without their own timeout.
	Timeout time.Duration
	// Config is merged over a manifest's config block, keyed by command name.
	Config map[string]map[string]any
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (o Options) disabledSet() map[string]bool {
	out := make(map[string]bool, len(o.Disabled))
	for _, d := range o.Disabled {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out[d] = true
		}
	}
	return out
}

// Report summarizes one discovery pass.
type Report struct {
	Loaded   []string     // primary names registered
	Disabled []string     // manifest paths skipped by the denylist
	Errors   []*LoadError // manifests skipped because they were invalid
}

// Discover scans plugin roots laid out as <root>/<category>/<command>.yaml.
// Invalid manifests are returned as LoadErrors and do not stop the scan; a
// missing or unreadable root is fatal.
func Discover(roots []string, opts Options) ([]*Plugin, *Report, error) {
	absRoots, err := resolveRoots(roots)
	if err != nil {
		return nil, nil, err
	}

	logger := opts.logger()
	disabled := opts.disabledSet()
	report := &Report{}
	var plugins []*Plugin

	for _, root := range absRoots {
		categories, err := os.ReadDir(root)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan plugin root %s: %w", root, err)
		}
		for _, cat := range categories {
			if !cat.IsDir() || strings.HasPrefix(cat.Name(), ".") {
				continue
			}
			catDir := filepath.Join(root, cat.Name())
			if disabled[strings.ToLower(cat.Name())] {
				logger.Info("category disabled", "category", cat.Name(), "path", catDir)
				report.Disabled = append(report.Disabled, catDir)
				continue
			}

			files, err := os.ReadDir(catDir)
			if err != nil {
				report.Errors = append(report.Errors, &LoadError{Path: catDir, Err: err})
				logger.Warn("failed to read category", "path", catDir, "error", err)
				continue
			}
			for _, f := range files {
				if f.IsDir() || !isManifestFile(f.Name()) {
					continue
				}
				path := filepath.Join(catDir, f.Name())
				stem := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
				if disabled[strings.ToLower(stem)] {
					logger.Info("command disabled", "path", path)
					report.Disabled = append(report.Disabled, path)
					continue
				}

				p, err := loadPlugin(path, stem, cat.Name(), catDir, root)
				if err != nil {
					report.Errors = append(report.Errors, &LoadError{Path: path, Err: err})
					logger.Warn("failed to load command manifest", "path", path, "error", err)
					continue
				}
				if disabled[strings.ToLower(p.Name)] {
					logger.Info("command disabled", "command", p.Name, "path", path)
					report.Disabled = append(report.Disabled, path)
					continue
				}
				plugins = append(plugins, p)
			}
		}
	}
	return plugins, report, nil
}

// Load discovers plugins and registers a descriptor for each into reg.
// Name collisions are recorded as LoadErrors; the first registration wins.
func Load(reg *command.Registry, roots []string, opts Options) (*Report, error) {
	plugins, report, err := Discover(roots, opts)
	if err != nil {
		return nil, err
	}

	logger := opts.logger()
	for _, p := range plugins {
		d, err := reg.Register(p.Descriptor(opts))
		if err != nil {
			var dup *command.DuplicateNameError
			if errors.As(err, &dup) {
				logger.Warn("duplicate command ignored (keeping first registered)",
					"command", p.Name, "name", dup.Name, "kept", dup.Existing, "path", p.ManifestPath)
			} else {
				logger.Warn("failed to register command", "path", p.ManifestPath, "error", err)
			}
			report.Errors = append(report.Errors, &LoadError{Path: p.ManifestPath, Err: err})
			continue
		}
		logger.Debug("loaded command", "command", d.Name, "category", d.Category, "path", p.ManifestPath)
		report.Loaded = append(report.Loaded, d.Name)
	}
	return report, nil
}

func resolveRoots(roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one plugin root is required")
	}
	seen := make(map[string]bool, len(roots))
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve plugin root %q: %w", root, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("plugin root does not exist: %s", abs)
			}
			return nil, fmt.Errorf("failed to stat plugin root %s: %w", abs, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("plugin root is not a directory: %s", abs)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one plugin root is required")
	}
	return out, nil
}

func isManifestFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return (ext == ".yaml" || ext == ".yml") && !strings.HasPrefix(name, ".")
}

func loadPlugin(path, stem, category, catDir, root string) (*Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if m.Name == "" {
		m.Name = stem
	}
	if err := validateManifest(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	entrypoint := filepath.Join(catDir, m.Entrypoint)
	if err := validateTrust(entrypoint, catDir, root); err != nil {
		return nil, fmt.Errorf("trust validation failed: %w", err)
	}

	return &Plugin{
		Manifest:     m,
		Category:     category,
		ManifestPath: path,
		Dir:          catDir,
		Entrypoint:   entrypoint,
	}, nil
}

// validateTrust requires the entrypoint to resolve inside both the plugin
// root and its category directory, to be executable, and the category
// directory not to be world-writable.
func validateTrust(entrypoint, catDir, root string) error {
	resolvedEntrypoint, err := filepath.EvalSymlinks(entrypoint)
	if err != nil {
		return fmt.Errorf("failed to resolve entrypoint symlink: %w", err)
	}
	resolvedDir, err := filepath.EvalSymlinks(catDir)
	if err != nil {
		return fmt.Errorf("failed to resolve category path symlink: %w", err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin root symlink %s: %w", root, err)
	}

	sep := string(os.PathSeparator)
	if !strings.HasPrefix(resolvedEntrypoint, resolvedRoot+sep) {
		return fmt.Errorf("entrypoint %s is not under plugin root %s", resolvedEntrypoint, resolvedRoot)
	}
	if !strings.HasPrefix(resolvedEntrypoint, resolvedDir+sep) {
		return fmt.Errorf("entrypoint %s is not under category directory %s", resolvedEntrypoint, resolvedDir)
	}

	info, err := os.Stat(resolvedEntrypoint)
	if err != nil {
		return fmt.Errorf("entrypoint not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("entrypoint is a directory: %s", resolvedEntrypoint)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("entrypoint is not executable: %s", resolvedEntrypoint)
	}

	dirInfo, err := os.Stat(resolvedDir)
	if err != nil {
		return fmt.Errorf("category directory not found: %w", err)
	}
	if dirInfo.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("category directory is world-writable: %s", resolvedDir)
	}
	return nil
}

// Descriptor converts the plugin into a registrable command descriptor whose
// handler runs the entrypoint.
func (p *Plugin) Descriptor(opts Options) *command.Descriptor {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = opts.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cfg := make(map[string]any, len(p.Config))
	for k, v := range p.Config {
		cfg[k] = v
	}
	for k, v := range opts.Config[strings.ToLower(p.Name)] {
		cfg[k] = v
	}

	return &command.Descriptor{
		Name:             p.Name,
		Aliases:          p.Aliases,
		Category:         p.Category,
		Description:      p.Description,
		Usage:            p.Usage,
		Cooldown:         p.Cooldown,
		RequiresOwner:    p.Owner,
		RequiresAdmin:    p.Admin,
		RequiresBotAdmin: p.BotAdmin,
		RequiresGroup:    p.Group,
		RequiresPrivate:  p.Private,
		Wait:             p.Wait,
		Source:           p.ManifestPath,
		Handler: &ExecHandler{
			Entrypoint: p.Entrypoint,
			Dir:        p.Dir,
			Timeout:    timeout,
			Config:     cfg,
			Logger:     opts.logger().With("command", strings.ToLower(p.Name)),
		},
	}
}
