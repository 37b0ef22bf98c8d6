package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattjoyce/herald/internal/blocklist"
	"github.com/mattjoyce/herald/internal/broadcast"
	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/transport"
)

type broadcastPayload struct {
	Target string   `json:"target"`
	By     string   `json:"by"`
	Total  int      `json:"total"`
	Sent   int      `json:"sent"`
	Failed []string `json:"failed,omitempty"`
}

func broadcastCmd(bc *broadcast.Broadcaster, pub events.Publisher) func(context.Context, *command.Context) error {
	return func(ctx context.Context, c *command.Context) error {
		text := c.ArgText()
		target := broadcast.TargetAll
		if args := c.Args(); len(args) > 0 && strings.HasPrefix(args[0], "--") {
			t, ok := broadcast.ParseTarget(strings.TrimPrefix(args[0], "--"))
			if !ok {
				return c.Reply(ctx, "❌ Unknown target. Use --groups, --users or --all.")
			}
			target = t
			text = strings.TrimSpace(strings.TrimPrefix(text, args[0]))
		}
		if text == "" {
			return c.Reply(ctx, "❌ Please provide a message to broadcast.")
		}

		rep, err := bc.Send(ctx, text, target)
		if err != nil {
			return err
		}
		if pub != nil {
			pub.Publish(events.TypeBroadcastDone, broadcastPayload{
				Target: string(target),
				By:     c.SenderID(),
				Total:  rep.Total,
				Sent:   rep.Sent,
				Failed: rep.Failed,
			})
		}
		return c.Reply(ctx, fmt.Sprintf("✅ Broadcast delivered to %d/%d chats.", rep.Sent, rep.Total))
	}
}

func blocklistCmd(store *blocklist.Store) func(context.Context, *command.Context) error {
	return func(ctx context.Context, c *command.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Reply(ctx, fmt.Sprintf("📋 *Blocklist*\n\n*Blocked users:* %d\n*Blocked groups:* %d\n\nUsage:\n%s",
				store.Len(blocklist.KindUser), store.Len(blocklist.KindGroup), c.Descriptor.Usage))
		}

		action := strings.ToLower(args[0])
		switch action {
		case "list":
			kinds := []blocklist.Kind{blocklist.KindUser, blocklist.KindGroup}
			if len(args) > 1 {
				k, err := blocklist.ParseKind(args[1])
				if err != nil {
					return c.Reply(ctx, "❌ Invalid type. Use 'user' or 'group'.")
				}
				kinds = []blocklist.Kind{k}
			}
			return listBlocked(ctx, c, store, kinds)
		case "add", "remove":
		default:
			return c.Reply(ctx, "❌ Invalid action. Use 'add', 'remove' or 'list'.")
		}

		if len(args) < 2 {
			return c.Reply(ctx, "❌ Invalid type. Use 'user' or 'group'.")
		}
		kind, err := blocklist.ParseKind(args[1])
		if err != nil {
			return c.Reply(ctx, "❌ Invalid type. Use 'user' or 'group'.")
		}
		if len(args) < 3 {
			return c.Reply(ctx, "❌ Give a number, or 'current' for this chat.")
		}
		target := args[2]
		if strings.EqualFold(target, "current") {
			target = c.ChatID()
		}
		if (kind == blocklist.KindGroup) != transport.IsGroupID(target) {
			if kind == blocklist.KindGroup {
				return c.Reply(ctx, "❌ That is a user. Use 'user' instead of 'group'.")
			}
			return c.Reply(ctx, "❌ That is a group. Use 'group' instead of 'user'.")
		}
		key := blocklist.Key(kind, target)

		if action == "add" {
			reason := strings.Join(args[3:], " ")
			added, err := store.Add(ctx, kind, target, c.SenderID(), reason)
			if err != nil {
				return err
			}
			if !added {
				return c.Reply(ctx, fmt.Sprintf("❌ %s is already blocked.", key))
			}
			return c.Reply(ctx, fmt.Sprintf("✅ Blocked %s %s.", kind, key))
		}

		removed, err := store.Remove(ctx, kind, target)
		if err != nil {
			return err
		}
		if !removed {
			return c.Reply(ctx, fmt.Sprintf("❌ %s is not blocked.", key))
		}
		return c.Reply(ctx, fmt.Sprintf("✅ Unblocked %s %s.", kind, key))
	}
}

func listBlocked(ctx context.Context, c *command.Context, store *blocklist.Store, kinds []blocklist.Kind) error {
	var b strings.Builder
	b.WriteString("📋 *Blocklist*\n")
	for _, k := range kinds {
		entries, err := store.List(ctx, k)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "\n*%ss (%d):*\n", strings.ToUpper(string(k[:1]))+string(k[1:]), len(entries))
		if len(entries) == 0 {
			b.WriteString("none\n")
		}
		for _, e := range entries {
			if e.Reason != "" {
				fmt.Fprintf(&b, "• %s (%s)\n", e.ID, e.Reason)
			} else {
				fmt.Fprintf(&b, "• %s\n", e.ID)
			}
		}
	}
	return c.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func reloadCmd(r Reloader) func(context.Context, *command.Context) error {
	return func(ctx context.Context, c *command.Context) error {
		n, failures, err := r.Reload(ctx)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("✅ Reloaded %d commands.", n)
		if failures > 0 {
			msg += fmt.Sprintf(" %d plugin(s) failed to load; see logs.", failures)
		}
		return c.Reply(ctx, msg)
	}
}
