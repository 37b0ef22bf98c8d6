// Package reload rebuilds the command registry from builtins and plugin
// manifests and swaps it in without interrupting dispatch.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/plugin"
)

// RegisterFunc adds in-process commands to a fresh registry before plugins
// are loaded, so builtins win every name collision.
type RegisterFunc func(reg *command.Registry) error

// Options configures a Reloader.
type Options struct {
	Prefix   string
	Roots    []string
	Plugins  plugin.Options
	Builtins RegisterFunc
	Events   events.Publisher
	Logger   *slog.Logger
}

// Reloader owns registry rebuilds. Concurrent reloads are serialized.
type Reloader struct {
	live *command.Live
	opts Options

	mu          sync.Mutex
	fingerprint string
	lastReport  *plugin.Report
}

// New creates a reloader that swaps registries into live.
func New(live *command.Live, opts Options) *Reloader {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Reloader{live: live, opts: opts}
}

type reloadedPayload struct {
	Commands int      `json:"commands"`
	Loaded   []string `json:"loaded"`
	Disabled int      `json:"disabled"`
	Errors   []string `json:"errors,omitempty"`
}

// Reload builds a new registry and publishes it. On error the current
// registry stays in place.
func (r *Reloader) Reload(ctx context.Context) (commands, failures int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// Fingerprint first so edits made during the build trigger another pass.
	fp, fpErr := config.Fingerprint(r.opts.Roots...)

	reg, report, err := r.build()
	if err != nil {
		return 0, 0, err
	}
	r.live.Swap(reg)
	if fpErr == nil {
		r.fingerprint = fp
	}
	r.lastReport = report

	errs := make([]string, 0, len(report.Errors))
	for _, le := range report.Errors {
		errs = append(errs, le.Error())
	}
	r.opts.Logger.Info("command registry reloaded",
		"commands", reg.Len(), "plugins", len(report.Loaded), "disabled", len(report.Disabled), "errors", len(errs))
	if r.opts.Events != nil {
		r.opts.Events.Publish(events.TypeRegistryReloaded, reloadedPayload{
			Commands: reg.Len(),
			Loaded:   report.Loaded,
			Disabled: len(report.Disabled),
			Errors:   errs,
		})
	}
	return reg.Len(), len(report.Errors), nil
}

func (r *Reloader) build() (*command.Registry, *plugin.Report, error) {
	reg := command.NewRegistry(r.opts.Prefix)
	if r.opts.Builtins != nil {
		if err := r.opts.Builtins(reg); err != nil {
			return nil, nil, fmt.Errorf("register builtins: %w", err)
		}
	}
	report := &plugin.Report{}
	if len(r.opts.Roots) > 0 {
		var err error
		report, err = plugin.Load(reg, r.opts.Roots, r.opts.Plugins)
		if err != nil {
			return nil, nil, fmt.Errorf("load plugins: %w", err)
		}
	}
	return reg, report, nil
}

// LastReport returns the plugin report from the most recent successful
// reload, or nil before the first one.
func (r *Reloader) LastReport() *plugin.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReport
}

// Changed reports whether the plugin tree differs from the last reload.
func (r *Reloader) Changed() (bool, error) {
	fp, err := config.Fingerprint(r.opts.Roots...)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fp != r.fingerprint, nil
}

// Watch polls the plugin roots every interval and reloads when they change.
// It returns when ctx is cancelled. A non-positive interval disables it.
func (r *Reloader) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 || len(r.opts.Roots) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := r.Changed()
			if err != nil {
				r.opts.Logger.Warn("plugin tree fingerprint failed", "error", err)
				continue
			}
			if !changed {
				continue
			}
			if _, _, err := r.Reload(ctx); err != nil {
				r.opts.Logger.Error("automatic reload failed; keeping current commands", "error", err)
			}
		}
	}
}
