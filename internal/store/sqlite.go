package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/seantiz/anvil/internal/model"

	_ "modernc.org/sqlite"
)

const createActionsTable = `
CREATE TABLE IF NOT EXISTS actions (
    ref         TEXT PRIMARY KEY,
    action_id   INTEGER NOT NULL,
    name        TEXT NOT NULL,
    discipline  TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    worker_id   INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    queued_at   DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME NOT NULL
)`

const createFinishedIndex = `
CREATE INDEX IF NOT EXISTS actions_finished_at ON actions (finished_at DESC)`

const selectColumns = `ref, action_id, name, discipline, outcome, error, worker_id,
	duration_ms, queued_at, started_at, finished_at`

// ErrNotFound is returned when an action is not in the journal.
var ErrNotFound = errors.New("action not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createActionsTable, createFinishedIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate actions table: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordAction inserts the journal entry of a completed action. Recording the
// same ref twice replaces the earlier row.
func (s *SQLiteStore) RecordAction(ctx context.Context, rec *model.ActionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO actions (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Ref, rec.ActionID, rec.Name, rec.Discipline, rec.Outcome, rec.Error,
		rec.WorkerID, rec.DurationMS, rec.QueuedAt, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// GetAction retrieves a journal entry by ref.
func (s *SQLiteStore) GetAction(ctx context.Context, ref string) (*model.ActionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM actions WHERE ref = ?`, ref)

	rec, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return rec, nil
}

// ListActions returns a page of journal entries, most recently finished
// first, along with the total number of entries.
func (s *SQLiteStore) ListActions(ctx context.Context, limit, offset int) ([]*model.ActionRecord, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM actions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count actions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM actions
		ORDER BY finished_at DESC, action_id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var records []*model.ActionRecord
	for rows.Next() {
		rec, err := scanAction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan action: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate actions: %w", err)
	}

	return records, total, nil
}

// GetActionStats aggregates the journal by outcome and discipline.
func (s *SQLiteStore) GetActionStats(ctx context.Context) (*ActionStats, error) {
	stats := &ActionStats{
		CountByOutcome:    make(map[string]int),
		CountByDiscipline: make(map[string]int),
	}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(CASE WHEN started_at IS NOT NULL THEN duration_ms END) FROM actions`,
	).Scan(&stats.Total, &avg)
	if err != nil {
		return nil, fmt.Errorf("count actions: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	if err := s.countBy(ctx, "outcome", stats.CountByOutcome); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "discipline", stats.CountByDiscipline); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy fills counts grouped by column. column is never user input.
func (s *SQLiteStore) countBy(ctx context.Context, column string, counts map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM actions GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(sc scanner) (*model.ActionRecord, error) {
	rec := &model.ActionRecord{}
	err := sc.Scan(
		&rec.Ref, &rec.ActionID, &rec.Name, &rec.Discipline, &rec.Outcome, &rec.Error,
		&rec.WorkerID, &rec.DurationMS, &rec.QueuedAt, &rec.StartedAt, &rec.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
