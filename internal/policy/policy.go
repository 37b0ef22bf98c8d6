// Package policy decides whether an invocation may run: role checks in a
// fixed order, then the per-sender cooldown.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mattjoyce/herald/internal/command"
)

// Reason identifies why an invocation was denied.
type Reason string

const (
	OwnerOnly        Reason = "owner_only"
	AdminOnly        Reason = "admin_only"
	GroupOnly        Reason = "group_only"
	PrivateOnly      Reason = "private_only"
	BotAdminRequired Reason = "bot_admin_required"
	CooldownActive   Reason = "cooldown_active"
)

// Facts are the role answers the dispatcher gathered for one invocation.
type Facts struct {
	SenderIsOwner      bool
	SenderIsGroupAdmin bool
	BotIsGroupAdmin    bool
}

// Result is the authorization outcome.
type Result struct {
	Allowed bool
	Reason  Reason
	// Remaining is the whole seconds left on a cooldown, rounded up.
	Remaining int
}

// Allowed is the zero-reason success result.
var Allowed = Result{Allowed: true}

// Denied builds a failure result.
func Denied(reason Reason) Result {
	return Result{Reason: reason}
}

// Message is the user-facing explanation of a denial.
func (r Result) Message() string {
	switch r.Reason {
	case OwnerOnly:
		return "❌ This command can only be used by the bot owner."
	case AdminOnly:
		return "❌ This command can only be used by group admins."
	case GroupOnly:
		return "❌ This command can only be used in groups."
	case PrivateOnly:
		return "❌ This command can only be used in private chats."
	case BotAdminRequired:
		return "❌ This command requires the bot to be an admin."
	case CooldownActive:
		return fmt.Sprintf("⏳ Please wait %ds before using this command again.", r.Remaining)
	}
	return ""
}

// Engine applies the checks. It is safe for concurrent use.
type Engine struct {
	ledger *Ledger
}

// NewEngine creates an engine with its own ledger. now may be nil.
func NewEngine(now func() time.Time) *Engine {
	return &Engine{ledger: NewLedger(now)}
}

// Ledger exposes the cooldown ledger.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Authorize runs the ordered checks; the first failure wins. Only an Allowed
// outcome records a cooldown entry.
func (e *Engine) Authorize(d *command.Descriptor, inv *command.Invocation, f Facts) Result {
	switch {
	case d.RequiresOwner && !f.SenderIsOwner:
		return Denied(OwnerOnly)
	case d.RequiresAdmin && !f.SenderIsGroupAdmin:
		return Denied(AdminOnly)
	case d.RequiresGroup && !inv.IsGroup:
		return Denied(GroupOnly)
	case d.RequiresPrivate && inv.IsGroup:
		return Denied(PrivateOnly)
	case d.RequiresBotAdmin && !f.BotIsGroupAdmin:
		return Denied(BotAdminRequired)
	}

	cooldown := time.Duration(d.CooldownSeconds()) * time.Second
	if left, ok := e.ledger.Acquire(d.Name, inv.SenderID, cooldown); !ok {
		return Result{Reason: CooldownActive, Remaining: ceilSeconds(left)}
	}
	return Allowed
}

// RunSweeper prunes expired cooldowns every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	e.ledger.RunSweeper(ctx, interval, logger)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
