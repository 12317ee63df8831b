package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"

	"github.com/aristath/gidterm/internal/interpret"
	"github.com/aristath/gidterm/internal/scheduler"
)

// Store persists run records to SQLite, keyed by the (possibly namespaced)
// task identifier. It implements scheduler.RecordStore.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the conventional on-disk database location.
func DefaultPath() (string, error) {
	return xdg.DataFile(filepath.Join("gidterm", "history.db"))
}

// NewStore opens (or creates) a SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and busy timeout.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for testing. Uses a shared
// cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*Store, error) {
	return open(ctx, "file::memory:?mode=memory&cache=shared")
}

func open(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_records (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL,
		success INTEGER NOT NULL,
		exit_code INTEGER NOT NULL,
		cancelled INTEGER NOT NULL,
		spawn_err TEXT,
		semantic_state TEXT,
		output_tail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_run_records_task_started
		ON run_records(task_id, started_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecord inserts one run record. Records are append-only; saving the
// same record ID twice is idempotent.
func (s *Store) SaveRecord(ctx context.Context, rec *scheduler.RunRecord) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("failed to encode semantic state: %w", err)
	}
	tailJSON, err := json.Marshal(rec.Tail)
	if err != nil {
		return fmt.Errorf("failed to encode output tail: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_records
			(id, task_id, attempt, started_at, ended_at, success, exit_code, cancelled, spawn_err, semantic_state, output_tail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.TaskID, rec.Attempt,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.EndedAt.UTC().Format(time.RFC3339Nano),
		boolInt(rec.Success), rec.ExitCode, boolInt(rec.Cancelled),
		rec.SpawnErr, string(stateJSON), string(tailJSON))
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

// History returns all run records for a task, oldest first.
func (s *Store) History(ctx context.Context, taskID string) ([]*scheduler.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, attempt, started_at, ended_at, success, exit_code, cancelled, spawn_err, semantic_state, output_tail
		FROM run_records
		WHERE task_id = ?
		ORDER BY started_at ASC, attempt ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run records: %w", err)
	}
	defer rows.Close()

	var out []*scheduler.RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TaskIDs returns every task identifier with at least one stored record.
func (s *Store) TaskIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT task_id FROM run_records ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query task ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (*scheduler.RunRecord, error) {
	var rec scheduler.RunRecord
	var startedAt, endedAt, stateJSON, tailJSON string
	var success, cancelled int
	if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Attempt, &startedAt, &endedAt,
		&success, &rec.ExitCode, &cancelled, &rec.SpawnErr, &stateJSON, &tailJSON); err != nil {
		return nil, fmt.Errorf("failed to scan run record: %w", err)
	}

	var err error
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if rec.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
		return nil, fmt.Errorf("failed to parse ended_at: %w", err)
	}
	rec.Success = success != 0
	rec.Cancelled = cancelled != 0

	rec.State = interpret.NewState()
	if stateJSON != "" {
		if err := json.Unmarshal([]byte(stateJSON), rec.State); err != nil {
			return nil, fmt.Errorf("failed to decode semantic state: %w", err)
		}
	}
	if tailJSON != "" {
		if err := json.Unmarshal([]byte(tailJSON), &rec.Tail); err != nil {
			return nil, fmt.Errorf("failed to decode output tail: %w", err)
		}
	}
	return &rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
