package command

import (
	"context"
	"time"
)

// MessageRef points at a chat message, e.g. the one a user replied to.
type MessageRef struct {
	ID          string `json:"id"`
	ChatID      string `json:"chat_id"`
	Participant string `json:"participant,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Invocation is a single normalized command request. It is created per inbound
// message and discarded after dispatch.
type Invocation struct {
	ID        string      `json:"id"`
	RawText   string      `json:"raw_text"`
	Name      string      `json:"name"`
	Args      []string    `json:"args"`
	ArgText   string      `json:"arg_text,omitempty"`
	SenderID  string      `json:"sender_id"`
	PushName  string      `json:"push_name,omitempty"`
	ChatID    string      `json:"chat_id"`
	IsGroup   bool        `json:"is_group"`
	MessageID string      `json:"message_id,omitempty"`
	Quoted    *MessageRef `json:"quoted,omitempty"`
	Mentions  []string    `json:"mentions,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TimestampMs returns the message time in epoch milliseconds.
func (inv *Invocation) TimestampMs() int64 {
	return inv.Timestamp.UnixMilli()
}

// Responder delivers handler output back to the originating chat.
type Responder interface {
	Reply(ctx context.Context, inv *Invocation, text string) error
	React(ctx context.Context, inv *Invocation, emoji string) error
}

// Context is what a handler receives for one invocation.
type Context struct {
	Invocation *Invocation
	Descriptor *Descriptor
	Registry   *Registry
	responder  Responder
}

// NewContext builds a handler context.
func NewContext(inv *Invocation, d *Descriptor, reg *Registry, r Responder) *Context {
	return &Context{Invocation: inv, Descriptor: d, Registry: reg, responder: r}
}

// Reply sends text to the invoking chat, quoting the triggering message.
func (c *Context) Reply(ctx context.Context, text string) error {
	return c.responder.Reply(ctx, c.Invocation, text)
}

// React attaches an emoji reaction to the triggering message.
func (c *Context) React(ctx context.Context, emoji string) error {
	return c.responder.React(ctx, c.Invocation, emoji)
}

// Args returns the whitespace-separated arguments after the command name.
func (c *Context) Args() []string { return c.Invocation.Args }

// ArgText returns everything after the command name with its original
// spacing and line breaks.
func (c *Context) ArgText() string { return c.Invocation.ArgText }

// SenderID returns the invoking identity.
func (c *Context) SenderID() string { return c.Invocation.SenderID }

// ChatID returns the chat the command was sent in.
func (c *Context) ChatID() string { return c.Invocation.ChatID }

// IsGroup reports whether the command came from a group chat.
func (c *Context) IsGroup() bool { return c.Invocation.IsGroup }

// Quoted returns the message the sender replied to, if any.
func (c *Context) Quoted() *MessageRef { return c.Invocation.Quoted }

// Prefix returns the configured command prefix.
func (c *Context) Prefix() string {
	if c.Registry == nil {
		return ""
	}
	return c.Registry.Prefix()
}
