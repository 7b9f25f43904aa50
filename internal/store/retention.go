package store

import (
	"context"
	"fmt"
	"time"
)

// DefaultModLogRetention is how long moderation log entries are kept.
const DefaultModLogRetention = 30 * 24 * time.Hour

// RunRetention deletes moderation log entries older than maxAge at now.
func (s *Store) RunRetention(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxAge <= 0 {
		maxAge = DefaultModLogRetention
	}
	cutoff := now.Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM moderation_log WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old moderation log entries: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Msg("moderation log pruned")
	}
	return n, nil
}

// DBSizeBytes returns the database size in bytes
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount int64
	var pageSize int64

	err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}

	err = s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}

	return pageCount * pageSize, nil
}
