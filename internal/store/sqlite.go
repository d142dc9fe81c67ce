package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/stratscope/internal/pipeline"
)

// SQLiteStore persists runs with write-through semantics: reads are served
// from an embedded MemoryStore, every save also lands in SQLite, and the
// full table is loaded back into memory at open so a restarted process can
// resume interrupted sessions.
type SQLiteStore struct {
	inner *MemoryStore
	db    *sqlx.DB
	mu    sync.Mutex
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	session_id TEXT    NOT NULL,
	version    INTEGER NOT NULL,
	state      TEXT    NOT NULL,
	payload    TEXT    NOT NULL,
	started_at TEXT    NOT NULL,
	updated_at TEXT    NOT NULL,
	PRIMARY KEY (session_id, version)
);
`

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{inner: NewMemoryStore(), db: db}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) loadAll() error {
	rows, err := s.db.Query("SELECT payload FROM runs ORDER BY session_id, version")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		var run pipeline.Run
		if err := json.Unmarshal([]byte(payload), &run); err != nil {
			return fmt.Errorf("decode run payload: %w", err)
		}
		if err := s.inner.SaveRun(context.Background(), &run); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *pipeline.Run) error {
	if err := s.inner.SaveRun(ctx, run); err != nil {
		return err
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs (session_id, version, state, payload, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.SessionID,
		run.Version,
		string(run.State),
		string(payload),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, sessionID string) (*pipeline.Run, error) {
	return s.inner.GetRun(ctx, sessionID)
}

func (s *SQLiteStore) GetRunVersion(ctx context.Context, sessionID string, version int) (*pipeline.Run, error) {
	return s.inner.GetRunVersion(ctx, sessionID, version)
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]string, error) {
	return s.inner.ListSessions(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ pipeline.RunStore = (*SQLiteStore)(nil)
