package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/p-blackswan/chatkeeper/internal/commands"
	"github.com/p-blackswan/chatkeeper/internal/users"
)

// Snapshot is the durable part of the bot state.
type Snapshot struct {
	Users     []users.Snapshot
	Commands  []commands.Definition
	Blacklist []string
	Timers    []commands.Timer
}

// SaveSnapshot replaces the stored state with snap in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"users", "commands", "blacklist", "timers"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, u := range snap.Users {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (name, created_at, view_seconds, currency) VALUES (?, ?, ?, ?)`,
			u.Name, u.CreatedAt.UnixMilli(), u.ViewSeconds, u.Currency,
		)
		if err != nil {
			return fmt.Errorf("failed to save user %s: %w", u.Name, err)
		}
	}

	for _, c := range snap.Commands {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO commands (
			name, level, content, cooldown_seconds, point_cost, last_used_at, use_count
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Name, c.Level.String(), c.Content, c.CooldownSeconds, c.PointCost,
			sql.NullInt64{Int64: c.LastUsedAt.UnixMilli(), Valid: !c.LastUsedAt.IsZero()},
			c.UseCount,
		)
		if err != nil {
			return fmt.Errorf("failed to save command %s: %w", c.Name, err)
		}
	}

	for _, w := range snap.Blacklist {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO blacklist (word) VALUES (?)`, w); err != nil {
			return fmt.Errorf("failed to save blacklist word: %w", err)
		}
	}

	for _, t := range snap.Timers {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO timers (name, interval_seconds, message, last_sent) VALUES (?, ?, ?, ?)`,
			t.Name, int64(t.Interval/time.Second), t.Message,
			sql.NullInt64{Int64: t.LastSent.UnixMilli(), Valid: !t.LastSent.IsZero()},
		)
		if err != nil {
			return fmt.Errorf("failed to save timer %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.Debug().
		Int("users", len(snap.Users)).
		Int("commands", len(snap.Commands)).
		Int("blacklist", len(snap.Blacklist)).
		Int("timers", len(snap.Timers)).
		Msg("snapshot saved")
	return nil
}

// LoadSnapshot reads the stored state. An empty database yields an empty
// snapshot.
func (s *Store) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap Snapshot
	var err error
	if snap.Users, err = s.loadUsers(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Commands, err = s.loadCommands(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Blacklist, err = s.loadBlacklist(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Timers, err = s.loadTimers(ctx); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) loadUsers(ctx context.Context) ([]users.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, created_at, view_seconds, currency FROM users ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var out []users.Snapshot
	for rows.Next() {
		var u users.Snapshot
		var createdAt int64
		if err := rows.Scan(&u.Name, &createdAt, &u.ViewSeconds, &u.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) loadCommands(ctx context.Context) ([]commands.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT name, level, content, cooldown_seconds, point_cost, last_used_at, use_count
	FROM commands ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	var out []commands.Definition
	for rows.Next() {
		var c commands.Definition
		var level string
		var lastUsed sql.NullInt64
		if err := rows.Scan(&c.Name, &level, &c.Content, &c.CooldownSeconds, &c.PointCost, &lastUsed, &c.UseCount); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		if c.Level, err = commands.ParseLevel(level); err != nil {
			s.logger.Warn().Str("command", c.Name).Str("level", level).Msg("unknown stored level, using none")
		}
		if lastUsed.Valid {
			c.LastUsedAt = time.UnixMilli(lastUsed.Int64).UTC()
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) loadBlacklist(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT word FROM blacklist ORDER BY word`)
	if err != nil {
		return nil, fmt.Errorf("failed to query blacklist: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist word: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) loadTimers(ctx context.Context) ([]commands.Timer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, interval_seconds, message, last_sent FROM timers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query timers: %w", err)
	}
	defer rows.Close()

	var out []commands.Timer
	for rows.Next() {
		var t commands.Timer
		var secs int64
		var lastSent sql.NullInt64
		if err := rows.Scan(&t.Name, &secs, &t.Message, &lastSent); err != nil {
			return nil, fmt.Errorf("failed to scan timer: %w", err)
		}
		t.Interval = time.Duration(secs) * time.Second
		if lastSent.Valid {
			t.LastSent = time.UnixMilli(lastSent.Int64).UTC()
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
