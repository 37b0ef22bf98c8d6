// Package builtin provides the commands herald ships with: help, menu,
// ping, the group tool tagall, and the owner tools broadcast, blocklist and
// reload.
package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/herald/internal/blocklist"
	"github.com/mattjoyce/herald/internal/broadcast"
	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/transport"
)

// Source marks descriptors registered by this package.
const Source = "builtin"

const (
	categoryCore  = "core"
	categoryGroup = "group"
	categoryOwner = "owner"
)

// Reloader rebuilds the live command registry.
type Reloader interface {
	Reload(ctx context.Context) (commands, failures int, err error)
}

// GroupBridge is the slice of the transport group tools talk to.
type GroupBridge interface {
	transport.Sender
	transport.GroupInspector
}

// Deps are the collaborators the group and owner tools need. A nil field
// leaves the matching command unregistered.
type Deps struct {
	BotName     string
	Groups      GroupBridge
	Broadcaster *broadcast.Broadcaster
	Blocklist   *blocklist.Store
	Reloader    Reloader
	Events      events.Publisher
	Now         func() time.Time

	// Disabled lists category, command or alias names to leave out,
	// case-insensitive. It is the same list bot.disabled applies to plugins.
	Disabled []string
}

type entry struct {
	desc    *command.Descriptor
	present bool
}

// Register adds every builtin whose dependencies are present and that
// Disabled does not name.
func Register(reg *command.Registry, deps Deps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.BotName == "" {
		deps.BotName = "herald"
	}

	disabled := make(map[string]bool, len(deps.Disabled))
	for _, name := range deps.Disabled {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			disabled[name] = true
		}
	}

	for _, e := range catalog(reg.Prefix(), deps) {
		if !e.present || isDisabled(e.desc, disabled) {
			continue
		}
		e.desc.Source = Source
		if _, err := reg.Register(e.desc); err != nil {
			return fmt.Errorf("register builtin %q: %w", e.desc.Name, err)
		}
	}
	return nil
}

// Names returns the lower-cased categories, names and aliases of every
// builtin, whether or not its dependencies are configured.
func Names() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s = strings.ToLower(s); s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, e := range catalog("", Deps{}) {
		add(e.desc.Category)
		add(e.desc.Name)
		for _, a := range e.desc.Aliases {
			add(a)
		}
	}
	return out
}

func isDisabled(d *command.Descriptor, disabled map[string]bool) bool {
	if len(disabled) == 0 {
		return false
	}
	if disabled[strings.ToLower(d.Category)] || disabled[strings.ToLower(d.Name)] {
		return true
	}
	for _, a := range d.Aliases {
		if disabled[strings.ToLower(a)] {
			return true
		}
	}
	return false
}

func catalog(prefix string, deps Deps) []entry {
	return []entry{
		{present: true, desc: &command.Descriptor{
			Name:        "help",
			Aliases:     []string{"h"},
			Category:    categoryCore,
			Description: "Show details for a command, or the menu",
			Usage:       prefix + "help [command]",
			Cooldown:    command.Seconds(0),
			Handler:     command.HandlerFunc(help(deps)),
		}},
		{present: true, desc: &command.Descriptor{
			Name:        "menu",
			Aliases:     []string{"commands", "cmds"},
			Category:    categoryCore,
			Description: "List every command by category",
			Handler:     command.HandlerFunc(menu(deps)),
		}},
		{present: true, desc: &command.Descriptor{
			Name:        "ping",
			Category:    categoryCore,
			Description: "Check that the bot is alive",
			Handler:     command.HandlerFunc(ping(deps)),
		}},
		{present: deps.Groups != nil, desc: &command.Descriptor{
			Name:          "tagall",
			Aliases:       []string{"tag", "all", "everyone"},
			Category:      categoryGroup,
			Description:   "Mention every member of the group",
			Usage:         prefix + "tagall [message]",
			Cooldown:      command.Seconds(30),
			RequiresGroup: true,
			RequiresAdmin: true,
			Handler:       command.HandlerFunc(tagAll(deps.Groups)),
		}},
		{present: deps.Broadcaster != nil, desc: &command.Descriptor{
			Name:          "broadcast",
			Aliases:       []string{"bc", "bcast"},
			Category:      categoryOwner,
			Description:   "Send an announcement to every chat",
			Usage:         prefix + "broadcast [--groups|--users] <message>",
			Cooldown:      command.Seconds(60),
			RequiresOwner: true,
			Wait:          true,
			Handler:       command.HandlerFunc(broadcastCmd(deps.Broadcaster, deps.Events)),
		}},
		{present: deps.Blocklist != nil, desc: &command.Descriptor{
			Name:          "blocklist",
			Aliases:       []string{"bl", "block"},
			Category:      categoryOwner,
			Description:   "Block users or groups from using the bot",
			Usage:         prefix + "blocklist add|remove user|group <number|current> | list [user|group]",
			Cooldown:      command.Seconds(0),
			RequiresOwner: true,
			Handler:       command.HandlerFunc(blocklistCmd(deps.Blocklist)),
		}},
		{present: deps.Reloader != nil, desc: &command.Descriptor{
			Name:          "reload",
			Category:      categoryOwner,
			Description:   "Rescan plugin directories",
			Cooldown:      command.Seconds(10),
			RequiresOwner: true,
			Handler:       command.HandlerFunc(reloadCmd(deps.Reloader)),
		}},
	}
}
