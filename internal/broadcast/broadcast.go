// Package broadcast fans one announcement out to every chat the bridge
// knows about, paced by a token bucket so the account is not flagged for
// spam.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mattjoyce/herald/internal/transport"
)

// Target selects which chats receive a broadcast.
type Target string

const (
	TargetAll    Target = "all"
	TargetGroups Target = "groups"
	TargetUsers  Target = "users"
)

// Bridge is what a broadcast needs from the transport.
type Bridge interface {
	transport.Sender
	transport.ChatLister
}

// Report summarizes one fan-out.
type Report struct {
	Total  int
	Sent   int
	Failed []string
}

// Broadcaster sends paced announcements.
type Broadcaster struct {
	bridge  Bridge
	limiter *rate.Limiter
	logger  *slog.Logger
	format  func(string) string
}

// New creates a broadcaster allowing one send per interval with the given
// burst. A non-positive interval disables pacing.
func New(b Bridge, interval time.Duration, burst int, logger *slog.Logger) *Broadcaster {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		bridge:  b,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		format:  Announcement,
	}
}

// Announcement wraps text in the standard broadcast frame.
func Announcement(text string) string {
	return "📢 *ANNOUNCEMENT*\n\n" + text
}

// Send delivers text to every chat matching target. A failed recipient is
// logged and skipped; only listing the chats or a cancelled ctx stops the
// run early.
func (b *Broadcaster) Send(ctx context.Context, text string, target Target) (Report, error) {
	chats, err := b.bridge.Chats(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list chats: %w", err)
	}

	var rep Report
	body := transport.Content{Text: b.format(text)}
	for _, chat := range chats {
		if !target.matches(chat) {
			continue
		}
		rep.Total++
		if err := b.limiter.Wait(ctx); err != nil {
			return rep, fmt.Errorf("broadcast interrupted after %d/%d: %w", rep.Sent, rep.Total, err)
		}
		if err := b.bridge.SendMessage(ctx, chat.ID, body, transport.SendOptions{}); err != nil {
			b.logger.Warn("broadcast send failed", "chat", chat.ID, "error", err)
			rep.Failed = append(rep.Failed, chat.ID)
			continue
		}
		rep.Sent++
	}
	b.logger.Info("broadcast finished", "target", string(target), "sent", rep.Sent, "total", rep.Total)
	return rep, nil
}

// ParseTarget maps a user-supplied word to a Target. Anything unrecognised
// is not a target and ok is false.
func ParseTarget(s string) (Target, bool) {
	switch Target(s) {
	case TargetAll, TargetGroups, TargetUsers:
		return Target(s), true
	}
	return TargetAll, false
}

func (t Target) matches(c transport.Chat) bool {
	if c.ID == transport.StatusBroadcast {
		return false
	}
	isGroup := c.IsGroup || transport.IsGroupID(c.ID)
	switch t {
	case TargetGroups:
		return isGroup
	case TargetUsers:
		return !isGroup
	}
	return true
}
