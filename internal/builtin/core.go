package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/config"
)

func help(deps Deps) func(context.Context, *command.Context) error {
	showMenu := menu(deps)
	return func(ctx context.Context, c *command.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return showMenu(ctx, c)
		}
		prefix := c.Prefix()
		name := strings.TrimPrefix(args[0], prefix)
		d, ok := c.Registry.Resolve(name)
		if !ok {
			return c.Reply(ctx, fmt.Sprintf("❌ Command %q not found.", name))
		}
		return c.Reply(ctx, describe(d, prefix))
	}
}

func describe(d *command.Descriptor, prefix string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Command:* %s%s\n\n", prefix, d.Name)
	if len(d.Aliases) > 0 {
		aliases := make([]string, len(d.Aliases))
		for i, a := range d.Aliases {
			aliases[i] = prefix + a
		}
		fmt.Fprintf(&b, "*Aliases:* %s\n", strings.Join(aliases, ", "))
	}
	fmt.Fprintf(&b, "*Category:* %s\n", d.Category)
	if d.Description != "" {
		fmt.Fprintf(&b, "*Description:* %s\n", d.Description)
	}
	fmt.Fprintf(&b, "*Usage:* %s\n", d.Usage)
	if cd := d.CooldownSeconds(); cd > 0 {
		fmt.Fprintf(&b, "*Cooldown:* %ds\n", cd)
	}

	var perms []string
	if d.RequiresOwner {
		perms = append(perms, "Owner Only")
	}
	if d.RequiresGroup {
		perms = append(perms, "Group Only")
	}
	if d.RequiresPrivate {
		perms = append(perms, "Private Chat Only")
	}
	if d.RequiresAdmin {
		perms = append(perms, "Admin Only")
	}
	if d.RequiresBotAdmin {
		perms = append(perms, "Bot Admin Required")
	}
	if len(perms) > 0 {
		fmt.Fprintf(&b, "\n*Permissions:* %s", strings.Join(perms, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func menu(deps Deps) func(context.Context, *command.Context) error {
	return func(ctx context.Context, c *command.Context) error {
		prefix := c.Prefix()
		greet := c.Invocation.PushName
		if greet == "" {
			greet = config.NormalizeUserID(c.SenderID())
		}

		var b strings.Builder
		fmt.Fprintf(&b, "🤖 *%s* 🤖\n\n", deps.BotName)
		fmt.Fprintf(&b, "Hello %s! Here are the available commands:\n\n", greet)

		byCat := c.Registry.ListByCategory()
		for _, cat := range c.Registry.Categories() {
			fmt.Fprintf(&b, "*%s*\n", strings.ToUpper(cat))
			for _, d := range byCat[cat] {
				if d.Description != "" {
					fmt.Fprintf(&b, "• %s%s - %s\n", prefix, d.Name, d.Description)
				} else {
					fmt.Fprintf(&b, "• %s%s\n", prefix, d.Name)
				}
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "For more info about a command, type %shelp [command]", prefix)
		return c.Reply(ctx, b.String())
	}
}

func ping(deps Deps) func(context.Context, *command.Context) error {
	return func(ctx context.Context, c *command.Context) error {
		sent := c.Invocation.Timestamp
		if sent.IsZero() {
			return c.Reply(ctx, "🏓 Pong!")
		}
		latency := deps.Now().Sub(sent)
		if latency < 0 {
			latency = 0
		}
		return c.Reply(ctx, fmt.Sprintf("🏓 Pong! %dms", latency.Round(time.Millisecond).Milliseconds()))
	}
}
