// Package doctor checks a herald configuration and its plugin tree beyond
// what loading the config already enforces.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/builtin"
	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/plugin"
	"github.com/mattjoyce/herald/internal/transport"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

var knownScopes = map[string]bool{
	auth.ScopeAll:          true,
	auth.ScopeCommandsRead: true,
	auth.ScopeReload:       true,
	auth.ScopeEventsRead:   true,
	auth.ScopeAuditRead:    true,
}

// Doctor validates configuration against the registry it produces.
type Doctor struct {
	cfg      *config.Config
	registry *command.Registry
	report   *plugin.Report
}

// New creates a Doctor. reg should hold builtins plus whatever plugin.Load
// registered; report is the plugin.Load result.
func New(cfg *config.Config, reg *command.Registry, report *plugin.Report) *Doctor {
	if report == nil {
		report = &plugin.Report{}
	}
	return &Doctor{cfg: cfg, registry: reg, report: report}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateOwners(r)
	d.validatePluginLoad(r)
	d.validateTokenScopes(r)
	d.warnUnknownDisabled(r)
	d.warnOrphanPluginConfig(r)
	d.warnMissingEnvVars(r)
	d.warnDeprecatedSyntax(r)
	d.warnSuspiciousIntervals(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateOwners checks that owner ids look like phone numbers.
func (d *Doctor) validateOwners(r *Result) {
	if len(d.cfg.Bot.Owners) == 0 {
		d.addWarning(r, "bot", "bot.owners", "no owners configured; owner-only commands will deny everyone")
		return
	}
	for i, o := range d.cfg.Bot.Owners {
		id := config.NormalizeUserID(o)
		if id == "" || transport.IsGroupID(o) || strings.Trim(id, "0123456789") != "" {
			d.addError(r, "bot", fmt.Sprintf("bot.owners[%d]", i),
				fmt.Sprintf("owner %q is not a phone number or user id", o))
		}
	}
}

// validatePluginLoad turns manifest and collision failures into errors.
func (d *Doctor) validatePluginLoad(r *Result) {
	for _, le := range d.report.Errors {
		d.addError(r, "plugins", le.Path, le.Err.Error())
	}
	if d.registry != nil && d.registry.Len() == 0 {
		d.addWarning(r, "plugins", "plugins.roots", "no commands registered")
	}
}

// validateTokenScopes checks that every scope is one the API understands.
func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			scope = strings.TrimSpace(scope)
			if knownScopes[scope] {
				continue
			}
			field := fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j)
			if res, ok := strings.CutSuffix(scope, ":ro"); ok && knownScopes[res+":rw"] {
				continue
			}
			d.addError(r, "token_scopes", field, fmt.Sprintf("unknown scope %q", scope))
		}
	}
}

// warnUnknownDisabled flags bot.disabled entries that match no builtin and
// nothing on disk.
func (d *Doctor) warnUnknownDisabled(r *Result) {
	if len(d.cfg.Bot.Disabled) == 0 {
		return
	}
	plugins, _, err := plugin.Discover(d.cfg.Plugins.Roots, plugin.Options{})
	if err != nil {
		return
	}
	known := make(map[string]bool)
	for _, name := range builtin.Names() {
		known[name] = true
	}
	for _, p := range plugins {
		known[strings.ToLower(p.Category)] = true
		known[strings.ToLower(p.Name)] = true
	}
	for i, name := range d.cfg.Bot.Disabled {
		if !known[strings.ToLower(name)] {
			d.addWarning(r, "plugins", fmt.Sprintf("bot.disabled[%d]", i),
				fmt.Sprintf("%q matches no builtin or plugin category or command", name))
		}
	}
}

// warnOrphanPluginConfig flags plugins.config blocks for unknown commands.
func (d *Doctor) warnOrphanPluginConfig(r *Result) {
	if d.registry == nil {
		return
	}
	for name := range d.cfg.Plugins.Config {
		if _, ok := d.registry.Resolve(name); !ok {
			d.addWarning(r, "plugins", "plugins.config."+name,
				fmt.Sprintf("config given for %q but no such command is loaded", name))
		}
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnMissingEnvVars warns about ${VAR} references left unresolved.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	check := func(field, value string) {
		for _, m := range envVarRe.FindAllStringSubmatch(value, -1) {
			if os.Getenv(m[1]) == "" {
				d.addWarning(r, "env_vars", field, fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
	check("transport.webhook.secret", d.cfg.Transport.Webhook.Secret)
	check("transport.websocket.token", d.cfg.Transport.Websocket.Token)
	check("api.auth.api_key", d.cfg.API.Auth.APIKey)
	for i, token := range d.cfg.API.Auth.Tokens {
		check(fmt.Sprintf("api.auth.tokens[%d].token", i), token.Token)
	}
}

// warnDeprecatedSyntax warns about legacy config patterns.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "deprecated", "api.auth.api_key",
			"api_key grants full access; prefer tokens with scopes")
	}
}

// warnSuspiciousIntervals flags timings that are legal but probably wrong.
func (d *Doctor) warnSuspiciousIntervals(r *Result) {
	if iv := d.cfg.Plugins.ReloadInterval; iv > 0 && iv < time.Second {
		d.addWarning(r, "timing", "plugins.reload_interval",
			fmt.Sprintf("reload interval %s rescans the plugin tree very often", iv))
	}
	if iv := d.cfg.Broadcast.Interval; iv == 0 {
		d.addWarning(r, "timing", "broadcast.interval",
			"broadcast pacing disabled; large fan-outs may get the bot rate limited")
	}
	if to := d.cfg.Plugins.Timeout; to > 5*time.Minute {
		d.addWarning(r, "timing", "plugins.timeout",
			fmt.Sprintf("plugin timeout %s is long; the sender sees no reply until it ends", to))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
