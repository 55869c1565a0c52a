package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"confbk/internal/confbk"
	"confbk/internal/database/migrations"
	"confbk/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase records backup runs in SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	clock confbk.Clock
	path  string
}

// NewSQLiteDatabase opens the database at path, or an in-memory database
// for ":memory:". The schema is not applied; see MigrateUp.
// A nil clock uses the wall clock.
func NewSQLiteDatabase(path string, clock confbk.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = confbk.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer per process; also keeps :memory: on a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// MigrateUp brings the schema to the newest version.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Run tracking

const runColumns = "id, run_id, started_at, finished_at, output_path, archive_path, entry_count, status, error"

func (s *SQLiteDatabase) StartRun(runID, outputPath string, entryCount int) (*model.Run, error) {
	run := &model.Run{
		RunID:      runID,
		StartedAt:  s.clock.Now().UTC(),
		OutputPath: outputPath,
		EntryCount: entryCount,
		Status:     model.RunStatusRunning,
	}

	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO runs (run_id, started_at, output_path, entry_count, status) VALUES (?, ?, ?, ?, ?)",
		run.RunID, run.StartedAt, run.OutputPath, run.EntryCount, run.Status)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

func (s *SQLiteDatabase) FinishRun(run *model.Run) error {
	if !run.FinishedAt.Valid {
		run.FinishedAt = sql.NullTime{Time: s.clock.Now().UTC(), Valid: true}
	}

	res, err := s.db.ExecContext(context.Background(),
		"UPDATE runs SET finished_at = ?, archive_path = ?, entry_count = ?, status = ?, error = ? WHERE id = ?",
		run.FinishedAt, run.ArchivePath, run.EntryCount, run.Status, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run: no run with id %d", run.ID)
	}
	return nil
}

func (s *SQLiteDatabase) ListRuns(limit int) ([]*model.Run, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// FindRun returns the run with the given run ID, or nil if there is none.
func (s *SQLiteDatabase) FindRun(runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding run: %w", err)
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var r model.Run
	err := row.Scan(&r.ID, &r.RunID, &r.StartedAt, &r.FinishedAt, &r.OutputPath,
		&r.ArchivePath, &r.EntryCount, &r.Status, &r.Error)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements confbk.History interface
var _ confbk.History = (*SQLiteDatabase)(nil)
