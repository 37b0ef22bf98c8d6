package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ledgerKey struct {
	command string
	sender  string
}

// Ledger records, per (command, sender), when the sender may next run the
// command. All reads and writes happen under one mutex so a check and the
// matching set can never interleave with another caller.
type Ledger struct {
	mu      sync.Mutex
	entries map[ledgerKey]time.Time
	now     func() time.Time
}

// NewLedger creates an empty ledger using now as its clock.
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		entries: make(map[ledgerKey]time.Time),
		now:     now,
	}
}

// Acquire records a use of command by sender unless an unexpired entry
// exists, in which case the time left is returned and ok is false. A
// non-positive cooldown always succeeds and records nothing.
func (l *Ledger) Acquire(command, sender string, cooldown time.Duration) (remaining time.Duration, ok bool) {
	if cooldown <= 0 {
		return 0, true
	}
	key := ledgerKey{command: command, sender: sender}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, found := l.entries[key]; found && now.Before(expiry) {
		return expiry.Sub(now), false
	}
	l.entries[key] = now.Add(cooldown)
	return 0, true
}

// Remaining reports the cooldown left without recording a use.
func (l *Ledger) Remaining(command, sender string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	expiry, found := l.entries[ledgerKey{command: command, sender: sender}]
	if !found {
		return 0
	}
	if left := expiry.Sub(l.now()); left > 0 {
		return left
	}
	return 0
}

// Sweep drops expired entries and returns how many were removed.
func (l *Ledger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for k, expiry := range l.entries {
		if !now.Before(expiry) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (l *Ledger) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 && logger != nil {
				logger.Debug("swept expired cooldowns", "removed", n)
			}
		}
	}
}
