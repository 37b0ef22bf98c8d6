package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/herald/internal/audit"
	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/log"
	"github.com/mattjoyce/herald/internal/normalize"
	"github.com/mattjoyce/herald/internal/policy"
	"github.com/mattjoyce/herald/internal/transport"
)

const (
	// WaitNotice is sent before running a command flagged wait.
	WaitNotice = "⏳ Processing..."
	// FailureReply is sent when a handler errors or panics.
	FailureReply = "❌ An error occurred while running this command."
)

// Outcome is the terminal state of one inbound message.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeUnknown  Outcome = "unknown"
	OutcomeDenied   Outcome = "denied"
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
)

// Result describes what happened to one message.
type Result struct {
	Outcome    Outcome
	Skip       normalize.Skip
	Invocation *command.Invocation
	Descriptor *command.Descriptor
	Decision   policy.Result
	Err        error
	Duration   time.Duration
}

// PanicError wraps a value recovered from a handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// Options carries the optional collaborators.
type Options struct {
	Owners    []string
	Blocklist Blocklist
	Audit     audit.Recorder
	Events    events.Publisher
	Logger    *slog.Logger
}

// Dispatcher routes normalized invocations to command handlers.
type Dispatcher struct {
	registry   *command.Live
	normalizer *normalize.Normalizer
	policy     *policy.Engine
	bridge     Bridge
	responder  command.Responder

	owners    map[string]struct{}
	blocklist Blocklist
	audit     audit.Recorder
	events    events.Publisher
	logger    *slog.Logger

	state    atomic.Value // transport.ConnectionState
	inFlight sync.WaitGroup
	now      func() time.Time
}

// New creates a dispatcher.
func New(reg *command.Live, n *normalize.Normalizer, p *policy.Engine, b Bridge, opts Options) *Dispatcher {
	owners := make(map[string]struct{}, len(opts.Owners))
	for _, o := range opts.Owners {
		if id := config.NormalizeUserID(o); id != "" {
			owners[id] = struct{}{}
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("dispatch")
	}
	d := &Dispatcher{
		registry:   reg,
		normalizer: n,
		policy:     p,
		bridge:     b,
		responder:  bridgeResponder{sender: b},
		owners:     owners,
		blocklist:  opts.Blocklist,
		audit:      opts.Audit,
		events:     opts.Events,
		logger:     logger,
		now:        time.Now,
	}
	d.state.Store(transport.StateConnecting)
	return d
}

// State returns the last connection state reported by the transport.
func (d *Dispatcher) State() transport.ConnectionState {
	return d.state.Load().(transport.ConnectionState)
}

// IsOwner reports whether id is one of the configured owners.
func (d *Dispatcher) IsOwner(id string) bool {
	_, ok := d.owners[config.NormalizeUserID(id)]
	return ok
}

// Run consumes messages until the channel closes or ctx is cancelled, then
// waits for in-flight handlers. Handlers run detached from ctx so shutdown
// never cuts a command off midway; subprocess handlers carry their own
// timeout.
func (d *Dispatcher) Run(ctx context.Context, messages <-chan transport.Message) error {
	d.logger.Info("dispatch loop started")
	defer d.logger.Info("dispatch loop stopped")

	handlerCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			d.inFlight.Wait()
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				d.inFlight.Wait()
				return nil
			}
			d.inFlight.Add(1)
			go func() {
				defer d.inFlight.Done()
				d.Dispatch(handlerCtx, msg)
			}()
		}
	}
}

// WatchStates logs and publishes connection changes until the channel
// closes or ctx is cancelled.
func (d *Dispatcher) WatchStates(ctx context.Context, states <-chan transport.ConnectionState) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-states:
			if !ok {
				return
			}
			d.state.Store(s)
			switch s {
			case transport.StateClosed:
				d.logger.Warn("bridge connection closed")
			default:
				d.logger.Info("bridge connection state", "state", string(s))
			}
			d.publish(events.TypeConnection, map[string]string{"state": string(s)})
		}
	}
}

// Dispatch takes one message through the whole pipeline. It never panics
// and never returns an error; the Result says what happened.
func (d *Dispatcher) Dispatch(ctx context.Context, msg transport.Message) Result {
	start := d.now()

	inv, skip := d.normalizer.Normalize(msg)
	if inv == nil {
		return Result{Outcome: OutcomeSkipped, Skip: skip}
	}
	logger := d.logger.With("invocation_id", inv.ID, "command", inv.Name, "sender", inv.SenderID)
	owner := d.IsOwner(inv.SenderID)

	if d.blocklist != nil && !owner && d.blocklist.Blocked(inv.SenderID, inv.ChatID) {
		logger.Debug("message from blocklisted sender or chat", "chat", inv.ChatID)
		return d.finish(ctx, start, Result{Outcome: OutcomeBlocked, Invocation: inv})
	}

	reg := d.registry.Load()
	desc, ok := reg.Resolve(inv.Name)
	if !ok {
		logger.Debug("unknown command")
		return Result{Outcome: OutcomeUnknown, Invocation: inv}
	}
	if desc.Name != inv.Name {
		// Log under the primary name so aliases aggregate.
		logger = d.logger.With("invocation_id", inv.ID, "command", desc.Name, "sender", inv.SenderID)
	}

	facts := policy.Facts{SenderIsOwner: owner}
	if desc.NeedsGroupRoles() && inv.IsGroup {
		facts.SenderIsGroupAdmin, facts.BotIsGroupAdmin = d.groupRoles(ctx, inv, logger)
	}

	decision := d.policy.Authorize(desc, inv, facts)
	if !decision.Allowed {
		logger.Info("command denied", "reason", string(decision.Reason), "remaining", decision.Remaining)
		if err := d.responder.Reply(ctx, inv, decision.Message()); err != nil {
			logger.Warn("denial reply failed", "error", err)
		}
		return d.finish(ctx, start, Result{Outcome: OutcomeDenied, Invocation: inv, Descriptor: desc, Decision: decision})
	}

	d.publish(events.TypeCommandStarted, startedPayload{InvocationID: inv.ID, Command: desc.Name, Sender: inv.SenderID, Chat: inv.ChatID})

	if desc.Wait {
		if err := d.responder.Reply(ctx, inv, WaitNotice); err != nil {
			logger.Warn("wait notice failed", "error", err)
		}
	}

	if err := d.execute(ctx, command.NewContext(inv, desc, reg, d.responder), desc); err != nil {
		attrs := []any{"error", err}
		var pe *PanicError
		if errors.As(err, &pe) {
			attrs = append(attrs, "stack", string(pe.Stack))
		}
		logger.Error("command failed", attrs...)
		if rerr := d.responder.Reply(ctx, inv, FailureReply); rerr != nil {
			logger.Warn("failure reply failed", "error", rerr)
		}
		return d.finish(ctx, start, Result{Outcome: OutcomeFailed, Invocation: inv, Descriptor: desc, Decision: decision, Err: err})
	}

	logger.Info("command executed", "duration_ms", d.now().Sub(start).Milliseconds())
	return d.finish(ctx, start, Result{Outcome: OutcomeExecuted, Invocation: inv, Descriptor: desc, Decision: decision})
}

func (d *Dispatcher) execute(ctx context.Context, cctx *command.Context, desc *command.Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return desc.Handler.Handle(ctx, cctx)
}

func (d *Dispatcher) groupRoles(ctx context.Context, inv *command.Invocation, logger *slog.Logger) (senderAdmin, botAdmin bool) {
	meta, err := d.bridge.GroupMetadata(ctx, inv.ChatID)
	if err != nil {
		logger.Warn("group metadata unavailable; treating roles as non-admin", "chat", inv.ChatID, "error", err)
		return false, false
	}
	return meta.IsAdmin(inv.SenderID), meta.IsAdmin(d.bridge.SelfID())
}

type startedPayload struct {
	InvocationID string `json:"invocation_id"`
	Command      string `json:"command"`
	Sender       string `json:"sender"`
	Chat         string `json:"chat"`
}

type outcomePayload struct {
	InvocationID string `json:"invocation_id"`
	Command      string `json:"command"`
	Sender       string `json:"sender"`
	Chat         string `json:"chat"`
	IsGroup      bool   `json:"is_group"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
	Remaining    int    `json:"remaining,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// finish stamps the duration, publishes the outcome and writes the audit row.
func (d *Dispatcher) finish(ctx context.Context, start time.Time, res Result) Result {
	res.Duration = d.now().Sub(start)
	inv := res.Invocation

	name := inv.Name
	if res.Descriptor != nil {
		name = res.Descriptor.Name
	}
	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}

	eventType := events.TypeCommandCompleted
	switch res.Outcome {
	case OutcomeDenied:
		eventType = events.TypeCommandDenied
	case OutcomeFailed:
		eventType = events.TypeCommandFailed
	case OutcomeBlocked:
		eventType = events.TypeMessageSkipped
	}
	d.publish(eventType, outcomePayload{
		InvocationID: inv.ID,
		Command:      name,
		Sender:       inv.SenderID,
		Chat:         inv.ChatID,
		IsGroup:      inv.IsGroup,
		Outcome:      string(res.Outcome),
		Reason:       string(res.Decision.Reason),
		Remaining:    res.Decision.Remaining,
		Error:        errText,
		DurationMs:   res.Duration.Milliseconds(),
	})

	if d.audit != nil {
		err := d.audit.Record(ctx, audit.Record{
			ID:        inv.ID,
			Command:   name,
			Sender:    inv.SenderID,
			Chat:      inv.ChatID,
			IsGroup:   inv.IsGroup,
			Outcome:   string(res.Outcome),
			Reason:    string(res.Decision.Reason),
			Error:     errText,
			StartedAt: start,
			Duration:  res.Duration,
		})
		if err != nil {
			d.logger.Warn("audit record failed", "invocation_id", inv.ID, "error", err)
		}
	}
	return res
}

func (d *Dispatcher) publish(eventType string, data any) {
	if d.events != nil {
		d.events.Publish(eventType, data)
	}
}
