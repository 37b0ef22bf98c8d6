package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultCategory is assigned to descriptors registered without one.
	DefaultCategory = "misc"
	// DefaultCooldown is the per-sender cooldown, in seconds, when a
	// descriptor leaves it unset.
	DefaultCooldown = 3
)

// ErrInvalidDescriptor is returned when a descriptor lacks a name or handler.
var ErrInvalidDescriptor = errors.New("invalid command descriptor")

// Handler executes one command invocation.
type Handler interface {
	Handle(ctx context.Context, c *Context) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, c *Context) error

// Handle calls f(ctx, c).
func (f HandlerFunc) Handle(ctx context.Context, c *Context) error {
	return f(ctx, c)
}

// Descriptor is the registered form of a command. It is never modified once
// published in a Registry.
type Descriptor struct {
	Name        string
	Aliases     []string
	Category    string
	Description string
	Usage       string
	// Cooldown is in seconds. nil means DefaultCooldown; 0 disables throttling.
	Cooldown *int

	RequiresOwner    bool
	RequiresAdmin    bool
	RequiresBotAdmin bool
	RequiresGroup    bool
	RequiresPrivate  bool

	// Wait sends a processing notice before the handler runs.
	Wait bool
	// Source is "builtin" or the manifest path the command came from.
	Source string

	Handler Handler
}

// Seconds returns a cooldown value suitable for Descriptor.Cooldown.
func Seconds(n int) *int {
	return &n
}

// CooldownSeconds returns the effective cooldown.
func (d *Descriptor) CooldownSeconds() int {
	if d.Cooldown == nil {
		return DefaultCooldown
	}
	return *d.Cooldown
}

// Names returns the primary name followed by its aliases.
func (d *Descriptor) Names() []string {
	return append([]string{d.Name}, d.Aliases...)
}

// NeedsGroupRoles reports whether authorization requires group metadata.
func (d *Descriptor) NeedsGroupRoles() bool {
	return d.RequiresAdmin || d.RequiresBotAdmin
}

// DuplicateNameError reports a name or alias that is already taken.
type DuplicateNameError struct {
	Name     string // the colliding key
	Command  string // primary name of the descriptor being registered
	Existing string // primary name of the descriptor that owns Name
}

func (e *DuplicateNameError) Error() string {
	if e.Existing == e.Command {
		return fmt.Sprintf("command %q: alias %q repeats its own name", e.Command, e.Name)
	}
	return fmt.Sprintf("command %q: name %q already registered by %q", e.Command, e.Name, e.Existing)
}

func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalized returns a defaulted copy of d with folded names.
func (d *Descriptor) normalized(prefix string) (*Descriptor, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil descriptor", ErrInvalidDescriptor)
	}
	out := *d
	out.Name = foldName(d.Name)
	if out.Name == "" || strings.ContainsAny(out.Name, " \t\n") {
		return nil, fmt.Errorf("%w: name %q", ErrInvalidDescriptor, d.Name)
	}
	if out.Handler == nil {
		return nil, fmt.Errorf("%w: command %q has no handler", ErrInvalidDescriptor, out.Name)
	}

	out.Aliases = make([]string, 0, len(d.Aliases))
	seen := map[string]bool{out.Name: true}
	for _, a := range d.Aliases {
		a = foldName(a)
		if a == "" {
			continue
		}
		if seen[a] {
			return nil, &DuplicateNameError{Name: a, Command: out.Name, Existing: out.Name}
		}
		seen[a] = true
		out.Aliases = append(out.Aliases, a)
	}

	out.Category = foldName(d.Category)
	if out.Category == "" {
		out.Category = DefaultCategory
	}
	if out.Cooldown == nil {
		out.Cooldown = Seconds(DefaultCooldown)
	} else {
		cd := *d.Cooldown
		if cd < 0 {
			return nil, fmt.Errorf("%w: command %q has negative cooldown", ErrInvalidDescriptor, out.Name)
		}
		out.Cooldown = &cd
	}
	out.Description = strings.TrimSpace(d.Description)
	out.Usage = strings.TrimSpace(d.Usage)
	if out.Usage == "" {
		out.Usage = prefix + out.Name
	}
	return &out, nil
}
