package store

import (
	"context"
	"fmt"
	"time"
)

// Action kinds written to the moderation log.
const (
	ActionTimeout   = "timeout"
	ActionPardon    = "pardon"
	ActionBlacklist = "blacklist"
	ActionReset     = "strikes_reset"
)

// ModAction is one moderation log entry.
type ModAction struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordAction appends an entry to the moderation log.
func (s *Store) RecordAction(ctx context.Context, a ModAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO moderation_log (user_name, action, reason, actor, created_at)
	VALUES (?, ?, ?, ?, ?)`,
		a.User, a.Action, a.Reason, a.Actor, a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record moderation action: %w", err)
	}
	return nil
}

// RecentActions returns up to limit entries, newest first. An empty user
// returns entries for everyone.
func (s *Store) RecentActions(ctx context.Context, user string, limit int) ([]ModAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_name, action, reason, actor, created_at FROM moderation_log`
	args := []any{}
	if user != "" {
		query += ` WHERE user_name = ?`
		args = append(args, user)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query moderation log: %w", err)
	}
	defer rows.Close()

	var out []ModAction
	for rows.Next() {
		var a ModAction
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.User, &a.Action, &a.Reason, &a.Actor, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan moderation action: %w", err)
		}
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
