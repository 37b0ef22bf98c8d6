// Package blocklist keeps the users and groups herald ignores. Entries
// persist in sqlite and are mirrored in memory so the hot path never touches
// the database.
package blocklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/herald/internal/config"
)

// Kind separates user entries from group entries.
type Kind string

const (
	KindUser  Kind = "user"
	KindGroup Kind = "group"
)

// ErrInvalidKind is returned for kinds other than user and group.
var ErrInvalidKind = errors.New("blocklist kind must be user or group")

// Entry is one blocked id.
type Entry struct {
	Kind      Kind
	ID        string
	AddedBy   string
	Reason    string
	CreatedAt time.Time
}

// Store is a sqlite-backed blocklist with an in-memory cache.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu    sync.RWMutex
	cache map[Kind]map[string]struct{}
}

// Open loads the current blocklist from db.
func Open(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{
		db:  db,
		now: time.Now,
		cache: map[Kind]map[string]struct{}{
			KindUser:  {},
			KindGroup: {},
		},
	}
	rows, err := db.QueryContext(ctx, `SELECT kind, id FROM blocklist`)
	if err != nil {
		return nil, fmt.Errorf("load blocklist: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, id string
		if err := rows.Scan(&kind, &id); err != nil {
			return nil, fmt.Errorf("scan blocklist: %w", err)
		}
		if set, ok := s.cache[Kind(kind)]; ok {
			set[id] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load blocklist: %w", err)
	}
	return s, nil
}

// ParseKind accepts "user"/"users" and "group"/"groups".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "users":
		return KindUser, nil
	case "group", "groups":
		return KindGroup, nil
	}
	return "", ErrInvalidKind
}

// Key canonicalizes id for kind. Users are stored as bare numbers so device
// and server suffixes never matter; group ids are kept verbatim.
func Key(kind Kind, id string) string {
	id = strings.TrimSpace(id)
	if kind == KindUser {
		return config.NormalizeUserID(id)
	}
	return id
}

// Add blocks id. It reports false when the id was already blocked.
func (s *Store) Add(ctx context.Context, kind Kind, id, addedBy, reason string) (bool, error) {
	key, err := s.key(kind, id)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO blocklist(kind, id, added_by, reason, created_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(kind, id) DO NOTHING`,
		string(kind), key, addedBy, reason, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("add %s %q: %w", kind, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add %s %q: %w", kind, key, err)
	}

	s.mu.Lock()
	s.cache[kind][key] = struct{}{}
	s.mu.Unlock()
	return n > 0, nil
}

// Remove unblocks id. It reports false when the id was not blocked.
func (s *Store) Remove(ctx context.Context, kind Kind, id string) (bool, error) {
	key, err := s.key(kind, id)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocklist WHERE kind = ? AND id = ?`, string(kind), key)
	if err != nil {
		return false, fmt.Errorf("remove %s %q: %w", kind, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove %s %q: %w", kind, key, err)
	}

	s.mu.Lock()
	delete(s.cache[kind], key)
	s.mu.Unlock()
	return n > 0, nil
}

// List returns the entries of kind ordered by id.
func (s *Store) List(ctx context.Context, kind Kind) ([]Entry, error) {
	if _, ok := s.cache[kind]; !ok {
		return nil, ErrInvalidKind
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, added_by, COALESCE(reason, ''), created_at FROM blocklist WHERE kind = ? ORDER BY id`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s blocklist: %w", kind, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{Kind: kind}
		var created string
		if err := rows.Scan(&e.ID, &e.AddedBy, &e.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan blocklist: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Blocked reports whether the sender or the chat is blocked.
func (s *Store) Blocked(senderID, chatID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.cache[KindUser][Key(KindUser, senderID)]; ok {
		return true
	}
	if _, ok := s.cache[KindGroup][Key(KindGroup, chatID)]; ok {
		return true
	}
	return false
}

// Len returns the cached entry count for kind.
func (s *Store) Len(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache[kind])
}

func (s *Store) key(kind Kind, id string) (string, error) {
	if kind != KindUser && kind != KindGroup {
		return "", ErrInvalidKind
	}
	key := Key(kind, id)
	if key == "" {
		return "", fmt.Errorf("empty %s id", kind)
	}
	return key, nil
}
