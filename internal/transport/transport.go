// Package transport defines the contract between herald and the messaging
// bridge, plus the chat identity helpers shared by its adapters.
//
// Adapters live in subpackages: webhook (HTTP in, HTTP out) and wsbridge
// (a websocket req/res/event client).
package transport

import (
	"context"
	"strings"
	"time"

	"github.com/mattjoyce/herald/internal/config"
)

const (
	// GroupSuffix marks group chat ids.
	GroupSuffix = "@g.us"
	// UserSuffix marks individual chat ids.
	UserSuffix = "@s.whatsapp.net"
	// StatusBroadcast is the pseudo-chat carrying status updates.
	StatusBroadcast = "status@broadcast"
)

// ConnectionState is the bridge connection lifecycle.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClosed     ConnectionState = "close"
)

// Message is one raw inbound chat event as delivered by the bridge.
type Message struct {
	ID          string `json:"id"`
	ChatID      string `json:"chat_id"`
	Participant string `json:"participant,omitempty"`
	FromMe      bool   `json:"from_me"`
	PushName    string `json:"push_name,omitempty"`
	// Timestamp is in unix seconds.
	Timestamp int64 `json:"timestamp"`

	Conversation string        `json:"conversation,omitempty"`
	ExtendedText *ExtendedText `json:"extended_text,omitempty"`
	Image        *Media        `json:"image,omitempty"`
	Video        *Media        `json:"video,omitempty"`
	Document     *Media        `json:"document,omitempty"`
}

// ExtendedText is a text message carrying reply or mention context.
type ExtendedText struct {
	Text        string       `json:"text"`
	ContextInfo *ContextInfo `json:"context_info,omitempty"`
}

// Media is an attachment with an optional caption.
type Media struct {
	Caption     string       `json:"caption,omitempty"`
	Mimetype    string       `json:"mimetype,omitempty"`
	ContextInfo *ContextInfo `json:"context_info,omitempty"`
}

// ContextInfo links a message to the one it replies to and its mentions.
type ContextInfo struct {
	StanzaID    string   `json:"stanza_id,omitempty"`
	Participant string   `json:"participant,omitempty"`
	QuotedText  string   `json:"quoted_text,omitempty"`
	Mentioned   []string `json:"mentioned,omitempty"`
}

// Time returns the message timestamp.
func (m *Message) Time() time.Time {
	if m.Timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(m.Timestamp, 0)
}

// MessageKey addresses a message for quoting or reacting.
type MessageKey struct {
	ID          string `json:"id"`
	ChatID      string `json:"chat_id"`
	Participant string `json:"participant,omitempty"`
	FromMe      bool   `json:"from_me,omitempty"`
}

// Content is an outbound message body. Exactly one of Text or Reaction is set.
type Content struct {
	Text     string    `json:"text,omitempty"`
	Mentions []string  `json:"mentions,omitempty"`
	Reaction *Reaction `json:"reaction,omitempty"`
}

// Reaction is an emoji attached to an existing message.
type Reaction struct {
	Emoji string     `json:"emoji"`
	Key   MessageKey `json:"key"`
}

// SendOptions tunes delivery of one outbound message.
type SendOptions struct {
	Quoted *MessageKey `json:"quoted,omitempty"`
}

// Participant is a group member.
type Participant struct {
	ID    string `json:"id"`
	Admin string `json:"admin,omitempty"` // "", "admin" or "superadmin"
}

// GroupMetadata describes a group chat.
type GroupMetadata struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject,omitempty"`
	Participants []Participant `json:"participants"`
}

// IsAdmin reports whether id is an admin or superadmin of the group. Device
// suffixes and server parts are ignored.
func (g *GroupMetadata) IsAdmin(id string) bool {
	if g == nil {
		return false
	}
	want := config.NormalizeUserID(id)
	if want == "" {
		return false
	}
	for _, p := range g.Participants {
		if config.NormalizeUserID(p.ID) == want {
			return p.Admin == "admin" || p.Admin == "superadmin"
		}
	}
	return false
}

// Chat is a conversation known to the bridge.
type Chat struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"is_group"`
}

// Sender delivers outbound messages.
type Sender interface {
	SendMessage(ctx context.Context, chatID string, content Content, opts SendOptions) error
}

// GroupInspector fetches group metadata.
type GroupInspector interface {
	GroupMetadata(ctx context.Context, chatID string) (*GroupMetadata, error)
}

// ChatLister enumerates known chats.
type ChatLister interface {
	Chats(ctx context.Context) ([]Chat, error)
}

// Transport is the full bridge contract.
type Transport interface {
	Sender
	GroupInspector
	ChatLister

	// Messages delivers inbound events. It is closed when Start returns.
	Messages() <-chan Message
	// States reports connection changes. Sends never block the adapter;
	// updates are dropped when nobody is listening.
	States() <-chan ConnectionState
	// SelfID is the bot's own chat id, or "" when not yet known.
	SelfID() string
	// Start runs the adapter until ctx is cancelled.
	Start(ctx context.Context) error
}

// IsGroupID reports whether chatID names a group.
func IsGroupID(chatID string) bool {
	return strings.HasSuffix(chatID, GroupSuffix)
}

// UserJID turns a bare number or device-qualified id into a user chat id.
func UserJID(id string) string {
	bare := config.NormalizeUserID(id)
	if bare == "" {
		return ""
	}
	return bare + UserSuffix
}

// SameUser compares two identities ignoring device and server parts.
func SameUser(a, b string) bool {
	na, nb := config.NormalizeUserID(a), config.NormalizeUserID(b)
	return na != "" && na == nb
}

// NotifyState offers s on ch without blocking.
func NotifyState(ch chan<- ConnectionState, s ConnectionState) {
	select {
	case ch <- s:
	default:
	}
}
