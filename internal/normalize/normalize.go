// Package normalize turns raw bridge messages into command invocations.
package normalize

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/transport"
)

// Skip explains why a message produced no invocation.
type Skip string

const (
	SkipNone        Skip = ""
	SkipSelf        Skip = "self"
	SkipStatus      Skip = "status_broadcast"
	SkipNoText      Skip = "no_text"
	SkipNoPrefix    Skip = "no_prefix"
	SkipPrefixOnly  Skip = "prefix_only"
	SkipMissingChat Skip = "missing_chat"
)

// Normalizer is stateless apart from its settings and safe for concurrent use.
type Normalizer struct {
	prefix         string
	statusHandling bool
	selfID         func() string
	newID          func() string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithStatusHandling lets status@broadcast messages through.
func WithStatusHandling(enabled bool) Option {
	return func(n *Normalizer) { n.statusHandling = enabled }
}

// WithSelfID supplies the bot's own id; messages from it are ignored even when
// the bridge does not flag them as from_me.
func WithSelfID(fn func() string) Option {
	return func(n *Normalizer) { n.selfID = fn }
}

// WithIDGenerator replaces the invocation id source.
func WithIDGenerator(fn func() string) Option {
	return func(n *Normalizer) { n.newID = fn }
}

// New creates a Normalizer for the given command prefix.
func New(prefix string, opts ...Option) *Normalizer {
	n := &Normalizer{
		prefix: prefix,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Prefix returns the configured command prefix.
func (n *Normalizer) Prefix() string {
	return n.prefix
}

// Normalize converts msg into an invocation. A nil invocation comes with the
// reason it was skipped.
func (n *Normalizer) Normalize(msg transport.Message) (*command.Invocation, Skip) {
	if msg.ChatID == "" {
		return nil, SkipMissingChat
	}
	if msg.FromMe {
		return nil, SkipSelf
	}
	if msg.ChatID == transport.StatusBroadcast && !n.statusHandling {
		return nil, SkipStatus
	}

	isGroup := transport.IsGroupID(msg.ChatID)
	sender := msg.ChatID
	if isGroup && msg.Participant != "" {
		sender = msg.Participant
	}
	if n.selfID != nil && transport.SameUser(sender, n.selfID()) {
		return nil, SkipSelf
	}

	text := extractText(msg)
	if text == "" {
		return nil, SkipNoText
	}
	if !strings.HasPrefix(text, n.prefix) {
		return nil, SkipNoPrefix
	}

	body := strings.TrimLeftFunc(text[len(n.prefix):], unicode.IsSpace)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return nil, SkipPrefixOnly
	}

	name := strings.ToLower(fields[0])
	argText := strings.TrimLeftFunc(body[len(fields[0]):], unicode.IsSpace)
	argText = strings.TrimRightFunc(argText, unicode.IsSpace)

	inv := &command.Invocation{
		ID:        n.newID(),
		RawText:   text,
		Name:      name,
		Args:      fields[1:],
		ArgText:   argText,
		SenderID:  sender,
		PushName:  msg.PushName,
		ChatID:    msg.ChatID,
		IsGroup:   isGroup,
		MessageID: msg.ID,
		Timestamp: msg.Time(),
	}

	if ext := msg.ExtendedText; ext != nil && ext.ContextInfo != nil {
		ci := ext.ContextInfo
		if ci.StanzaID != "" {
			inv.Quoted = &command.MessageRef{
				ID:          ci.StanzaID,
				ChatID:      msg.ChatID,
				Participant: ci.Participant,
				Text:        ci.QuotedText,
			}
		}
		if len(ci.Mentioned) > 0 {
			inv.Mentions = append([]string(nil), ci.Mentioned...)
		}
	}
	return inv, SkipNone
}

// extractText prefers plain text, then extended text, then a media caption.
func extractText(msg transport.Message) string {
	switch {
	case msg.Conversation != "":
		return msg.Conversation
	case msg.ExtendedText != nil && msg.ExtendedText.Text != "":
		return msg.ExtendedText.Text
	case msg.Image != nil && msg.Image.Caption != "":
		return msg.Image.Caption
	case msg.Video != nil && msg.Video.Caption != "":
		return msg.Video.Caption
	case msg.Document != nil && msg.Document.Caption != "":
		return msg.Document.Caption
	}
	return ""
}
