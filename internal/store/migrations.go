package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	if err := s.migrateV2(); err != nil {
		return err
	}
	return s.migrateV3()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		name         TEXT PRIMARY KEY,
		created_at   INTEGER NOT NULL,
		view_seconds INTEGER NOT NULL DEFAULT 0,
		currency     INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS commands (
		name             TEXT PRIMARY KEY,
		level            TEXT NOT NULL DEFAULT 'none',
		content          TEXT NOT NULL,
		cooldown_seconds INTEGER NOT NULL DEFAULT 0,
		point_cost       INTEGER NOT NULL DEFAULT 0,
		last_used_at     INTEGER,
		use_count        INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS blacklist (
		word TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}

func (s *Store) migrateV2() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "2" {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS timers (
		name             TEXT PRIMARY KEY,
		interval_seconds INTEGER NOT NULL,
		message          TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS moderation_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_name  TEXT NOT NULL,
		action     TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		actor      TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_modlog_created ON moderation_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_modlog_user ON moderation_log(user_name, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v2: %w", err)
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

func (s *Store) migrateV3() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "3" {
		return nil
	}

	if _, err := s.db.Exec(`ALTER TABLE timers ADD COLUMN last_sent INTEGER`); err != nil {
		return fmt.Errorf("failed to execute migration v3: %w", err)
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '3')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}
