package dispatch

import (
	"context"

	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/transport"
)

// bridgeResponder answers in the invoking chat, quoting the triggering
// message.
type bridgeResponder struct {
	sender transport.Sender
}

func (r bridgeResponder) Reply(ctx context.Context, inv *command.Invocation, text string) error {
	return r.sender.SendMessage(ctx, inv.ChatID, transport.Content{Text: text}, transport.SendOptions{Quoted: messageKey(inv)})
}

func (r bridgeResponder) React(ctx context.Context, inv *command.Invocation, emoji string) error {
	content := transport.Content{Reaction: &transport.Reaction{Emoji: emoji, Key: *messageKey(inv)}}
	return r.sender.SendMessage(ctx, inv.ChatID, content, transport.SendOptions{})
}

func messageKey(inv *command.Invocation) *transport.MessageKey {
	key := &transport.MessageKey{ID: inv.MessageID, ChatID: inv.ChatID}
	if inv.IsGroup {
		key.Participant = inv.SenderID
	}
	return key
}
