package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/gametools/internal/logging"
	"github.com/me/gametools/pkg/model"

	_ "modernc.org/sqlite"
)

// timeLayout has a fixed width so that stored times sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logging.Component(logger, "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- History ---

// RecordHistory inserts entry and sets its ID. A zero At is set to now.
func (s *SQLiteStore) RecordHistory(ctx context.Context, entry *model.HistoryEntry) error {
	s.logger.Debug("sql", "op", "insert", "table", "history", "kind", entry.Kind)

	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO history (run_id, kind, subject, detail, at) VALUES (?, ?, ?, ?, ?)`,
		entry.RunID, string(entry.Kind), entry.Subject, entry.Detail, entry.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("history id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListHistory returns entries newest first, filtered by opts.Kind and
// opts.Subject when set, and the total number of matching entries.
func (s *SQLiteStore) ListHistory(ctx context.Context, opts model.ListOptions) ([]*model.HistoryEntry, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "history", "limit", opts.Limit, "offset", opts.Offset, "kind", opts.Kind, "subject", opts.Subject)
	opts.Clamp()

	var conds []string
	var args []any
	if opts.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(opts.Kind))
	}
	if opts.Subject != "" {
		conds = append(conds, "subject = ?")
		args = append(args, opts.Subject)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, kind, subject, detail, at FROM history`+where+` ORDER BY id DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var kind, at string
		if err := rows.Scan(&e.ID, &e.RunID, &kind, &e.Subject, &e.Detail, &at); err != nil {
			return nil, 0, err
		}
		e.Kind = model.HistoryKind(kind)
		e.At, _ = time.Parse(timeLayout, at)
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}

// PruneHistory deletes entries older than before and returns how many were
// deleted.
func (s *SQLiteStore) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	s.logger.Debug("sql", "op", "delete", "table", "history", "before", before)

	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
