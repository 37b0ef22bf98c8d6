// Package audit records the terminal outcome of every resolved command in
// the command_log table.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one command_log row.
type Record struct {
	ID        string
	Command   string
	Sender    string
	Chat      string
	IsGroup   bool
	Outcome   string
	Reason    string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder is the write side used by the dispatcher.
type Recorder interface {
	Record(ctx context.Context, r Record) error
}

// Log writes and queries command_log.
type Log struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Log over an already bootstrapped database.
func New(db *sql.DB) *Log {
	return &Log{db: db, now: time.Now}
}

// Record inserts r. A missing ID is generated.
func (l *Log) Record(ctx context.Context, r Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = l.now()
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO command_log(id, command, sender, chat, is_group, outcome, reason, error, started_at, duration_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, r.ID, r.Command, r.Sender, r.Chat, boolInt(r.IsGroup), r.Outcome,
		nullable(r.Reason), nullable(r.Error),
		r.StartedAt.UTC().Format(timeLayout), r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert command_log: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, command, sender, chat, is_group, outcome, COALESCE(reason, ''), COALESCE(error, ''), started_at, duration_ms
FROM command_log
ORDER BY started_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query command_log: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			isGroup int
			started string
			ms      int64
		)
		if err := rows.Scan(&r.ID, &r.Command, &r.Sender, &r.Chat, &isGroup, &r.Outcome,
			&r.Reason, &r.Error, &started, &ms); err != nil {
			return nil, fmt.Errorf("scan command_log: %w", err)
		}
		r.IsGroup = isGroup != 0
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes rows started before now minus retention.
func (l *Log) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().Format(timeLayout)
	res, err := l.db.ExecContext(ctx, `DELETE FROM command_log WHERE started_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune command_log: %w", err)
	}
	return res.RowsAffected()
}

// RunPruner prunes once an hour until ctx is cancelled. A non-positive
// retention keeps everything.
func (l *Log) RunPruner(ctx context.Context, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		if n, err := l.Prune(ctx, retention); err != nil {
			logger.Warn("audit prune failed", "error", err)
		} else if n > 0 {
			logger.Info("audit pruned", "rows", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
