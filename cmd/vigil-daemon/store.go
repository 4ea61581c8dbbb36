// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/schema"
	"github.com/vigil-works/vigil/lib/sqlitepool"
)

// Store persists usage samples in SQLite, one table per UTC day
// (usage_samples_YYYYMMDD). Partitioning makes retention a DROP TABLE
// instead of a DELETE scan, and keeps each day's index small.
//
// Write path: the event pump calls RecordSample once per throttled
// context update; the day's partition is created on first write.
//
// Read path: Samples builds a UNION ALL over the partitions that
// overlap the requested range, ordered by timestamp, so callers see
// one flat chronological result set.
//
// Retention: RunRetention drops whole partitions older than the
// retention period. Called hourly from the daemon's maintenance loop.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger

	// partitionMu serializes partition creation and guards
	// knownPartitions.
	partitionMu     sync.Mutex
	knownPartitions map[string]bool // partition suffix → exists
}

// StoreConfig holds the parameters for opening a usage history store.
type StoreConfig struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string

	// PoolSize is the connection pool size; zero or negative uses the
	// pool default.
	PoolSize int

	// Clock provides the current time for retention decisions.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// OpenStore opens (creating if needed) the history database and
// discovers partitions left by previous runs.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("history store: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("history store: Logger is required")
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	store := &Store{
		pool:            pool,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		knownPartitions: make(map[string]bool),
	}

	if err := store.discoverPartitions(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: discovering partitions: %w", err)
	}

	return store, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// partitionSuffix returns the YYYYMMDD suffix for a Unix nanosecond
// timestamp.
func partitionSuffix(unixNanos int64) string {
	return time.Unix(0, unixNanos).UTC().Format("20060102")
}

// RecordSample inserts one sample into its day's partition, creating
// the partition on first write.
func (s *Store) RecordSample(ctx context.Context, sample schema.UsageSample) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("history store: record sample: %w", err)
	}
	defer s.pool.Put(conn)

	suffix := partitionSuffix(sample.Timestamp)
	if err := s.ensurePartition(conn, suffix); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO usage_samples_%s
		(workspace_id, timestamp, current_tokens, window_tokens,
		 context_percent, plan_percent, burn_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, suffix)

	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{
			sample.WorkspaceID,
			sample.Timestamp,
			int64(sample.CurrentTokens),
			int64(sample.WindowTokens),
			sample.ContextPercent,
			sample.PlanPercent,
			sample.BurnRatePerHour,
		},
	})
	if err != nil {
		return fmt.Errorf("history store: insert into usage_samples_%s: %w", suffix, err)
	}
	return nil
}

// ensurePartition creates the day's partition table if it does not
// exist. Safe to call concurrently.
func (s *Store) ensurePartition(conn *sqlite.Conn, suffix string) error {
	s.partitionMu.Lock()
	defer s.partitionMu.Unlock()

	if s.knownPartitions[suffix] {
		return nil
	}

	if err := sqlitex.ExecuteScript(conn, partitionSchema(suffix), nil); err != nil {
		return fmt.Errorf("history store: creating partition %s: %w", suffix, err)
	}

	s.knownPartitions[suffix] = true
	s.logger.Info("history partition created", "suffix", suffix)
	return nil
}

// partitionSchema returns the CREATE TABLE and CREATE INDEX statements
// for a day partition.
func partitionSchema(suffix string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS usage_samples_%[1]s (
			workspace_id    TEXT NOT NULL,
			timestamp       INTEGER NOT NULL,
			current_tokens  INTEGER NOT NULL,
			window_tokens   INTEGER NOT NULL,
			context_percent REAL NOT NULL,
			plan_percent    REAL NOT NULL,
			burn_rate       REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_usage_samples_%[1]s_workspace
			ON usage_samples_%[1]s(workspace_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_usage_samples_%[1]s_time
			ON usage_samples_%[1]s(timestamp);
	`, suffix)
}

// discoverPartitions finds existing partition tables from a previous
// run. Called once during OpenStore.
func (s *Store) discoverPartitions() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"SELECT name FROM sqlite_master WHERE type='table' AND name LIKE 'usage_samples_%'",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				suffix := strings.TrimPrefix(stmt.ColumnText(0), "usage_samples_")
				s.knownPartitions[suffix] = true
				return nil
			},
		})
	if err != nil {
		return err
	}

	if len(s.knownPartitions) > 0 {
		s.logger.Info("discovered history partitions", "count", len(s.knownPartitions))
	}
	return nil
}

// activePartitions returns the known partition suffixes sorted oldest
// first, so queries come back chronological.
func (s *Store) activePartitions() []string {
	s.partitionMu.Lock()
	partitions := make([]string, 0, len(s.knownPartitions))
	for suffix := range s.knownPartitions {
		partitions = append(partitions, suffix)
	}
	s.partitionMu.Unlock()

	sort.Strings(partitions)
	return partitions
}

// partitionsInRange returns partition suffixes overlapping the given
// range, oldest first. A zero bound is open.
func (s *Store) partitionsInRange(fromNanos, toNanos int64) []string {
	all := s.activePartitions()
	if fromNanos == 0 && toNanos == 0 {
		return all
	}

	var filtered []string
	for _, suffix := range all {
		partitionDate, err := time.Parse("20060102", suffix)
		if err != nil {
			continue
		}
		// The partition covers [date 00:00:00, date+24h) UTC.
		partitionStart := partitionDate.UnixNano()
		partitionEnd := partitionDate.Add(24 * time.Hour).UnixNano()

		if fromNanos != 0 && partitionEnd <= fromNanos {
			continue
		}
		if toNanos != 0 && partitionStart > toNanos {
			continue
		}
		filtered = append(filtered, suffix)
	}
	return filtered
}

// defaultSampleLimit caps a single Samples call. At one sample per
// throttle interval this is several days of history for one workspace.
const defaultSampleLimit = 10000

// Samples returns stored samples ordered by timestamp ascending. An
// empty workspaceID matches all workspaces; zero bounds are open. A
// non-positive limit uses defaultSampleLimit.
func (s *Store) Samples(ctx context.Context, workspaceID string, fromNanos, toNanos int64, limit int) ([]schema.UsageSample, error) {
	partitions := s.partitionsInRange(fromNanos, toNanos)
	if len(partitions) == 0 {
		return nil, nil
	}

	if limit <= 0 {
		limit = defaultSampleLimit
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("history store: query samples: %w", err)
	}
	defer s.pool.Put(conn)

	var conditions []string
	var conditionArgs []any
	if workspaceID != "" {
		conditions = append(conditions, "workspace_id = ?")
		conditionArgs = append(conditionArgs, workspaceID)
	}
	if fromNanos != 0 {
		conditions = append(conditions, "timestamp >= ?")
		conditionArgs = append(conditionArgs, fromNanos)
	}
	if toNanos != 0 {
		conditions = append(conditions, "timestamp <= ?")
		conditionArgs = append(conditionArgs, toNanos)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	// One SELECT per overlapping partition, glued with UNION ALL and
	// ordered across the whole set. Partition names come from our own
	// suffix format, never from caller input.
	selects := make([]string, 0, len(partitions))
	var args []any
	for _, suffix := range partitions {
		selects = append(selects,
			"SELECT workspace_id, timestamp, current_tokens, window_tokens, "+
				"context_percent, plan_percent, burn_rate FROM usage_samples_"+suffix+where)
		args = append(args, conditionArgs...)
	}
	query := strings.Join(selects, " UNION ALL ") + " ORDER BY timestamp LIMIT ?"
	args = append(args, limit)

	var samples []schema.UsageSample
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			samples = append(samples, schema.UsageSample{
				WorkspaceID:     stmt.ColumnText(0),
				Timestamp:       stmt.ColumnInt64(1),
				CurrentTokens:   uint64(stmt.ColumnInt64(2)),
				WindowTokens:    uint64(stmt.ColumnInt64(3)),
				ContextPercent:  stmt.ColumnFloat(4),
				PlanPercent:     stmt.ColumnFloat(5),
				BurnRatePerHour: stmt.ColumnFloat(6),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history store: query samples: %w", err)
	}
	return samples, nil
}

// RunRetention drops partitions older than the retention period. Safe
// to call from a background ticker.
func (s *Store) RunRetention(ctx context.Context, retention time.Duration) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("history store: retention: %w", err)
	}
	defer s.pool.Put(conn)

	now := s.clock.Now().UTC()

	s.partitionMu.Lock()
	defer s.partitionMu.Unlock()

	for suffix := range s.knownPartitions {
		partitionDate, err := time.Parse("20060102", suffix)
		if err != nil {
			s.logger.Warn("retention: unparseable partition suffix",
				"suffix", suffix,
				"error", err)
			continue
		}

		// A partition dated D holds samples through D 23:59:59, so it
		// expires retention+24h after D 00:00:00.
		age := now.Sub(partitionDate)
		if age <= retention+24*time.Hour {
			continue
		}

		dropQuery := "DROP TABLE IF EXISTS usage_samples_" + suffix
		if err := sqlitex.ExecuteTransient(conn, dropQuery, nil); err != nil {
			s.logger.Error("retention: failed to drop partition",
				"suffix", suffix,
				"error", err)
			continue
		}

		delete(s.knownPartitions, suffix)
		s.logger.Info("history partition dropped by retention",
			"suffix", suffix,
			"age", age.Round(time.Hour))
	}

	return nil
}

// StoreStats summarizes the history database for the status action.
type StoreStats struct {
	PartitionCount  int
	OldestPartition string
	NewestPartition string
	SampleCount     int64
	SizeBytes       int64
}

// Stats walks the partitions and reports row and size totals.
func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return StoreStats{}, fmt.Errorf("history store: stats: %w", err)
	}
	defer s.pool.Put(conn)

	partitions := s.activePartitions()

	stats := StoreStats{PartitionCount: len(partitions)}
	if len(partitions) > 0 {
		stats.OldestPartition = partitions[0]
		stats.NewestPartition = partitions[len(partitions)-1]
	}

	err = sqlitex.Execute(conn,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.SizeBytes = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return stats, fmt.Errorf("history store: database size: %w", err)
	}

	for _, suffix := range partitions {
		var count int64
		err := sqlitex.Execute(conn, "SELECT COUNT(*) FROM usage_samples_"+suffix,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					count = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return stats, fmt.Errorf("history store: counting usage_samples_%s: %w", suffix, err)
		}
		stats.SampleCount += count
	}

	return stats, nil
}
