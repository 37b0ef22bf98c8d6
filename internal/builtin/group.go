package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/transport"
)

func tagAll(groups GroupBridge) func(context.Context, *command.Context) error {
	return func(ctx context.Context, c *command.Context) error {
		if !c.IsGroup() {
			return c.Reply(ctx, "❌ This command can only be used in groups.")
		}
		meta, err := groups.GroupMetadata(ctx, c.ChatID())
		if err != nil {
			return fmt.Errorf("group metadata: %w", err)
		}

		var b strings.Builder
		if msg := strings.TrimSpace(c.ArgText()); msg != "" {
			fmt.Fprintf(&b, "*%s*\n\n", msg)
		} else {
			b.WriteString("*Tag All*\n\n")
		}
		mentions := make([]string, 0, len(meta.Participants))
		for _, p := range meta.Participants {
			user, _, _ := strings.Cut(p.ID, "@")
			b.WriteString("@" + user + " ")
			mentions = append(mentions, p.ID)
		}

		inv := c.Invocation
		quoted := &transport.MessageKey{ID: inv.MessageID, ChatID: inv.ChatID, Participant: inv.SenderID}
		content := transport.Content{Text: strings.TrimSpace(b.String()), Mentions: mentions}
		return groups.SendMessage(ctx, inv.ChatID, content, transport.SendOptions{Quoted: quoted})
	}
}
