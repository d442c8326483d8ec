package transcript

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	// Register modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseInitMu sync.Mutex

// SQLiteStore persists transcripts in a modernc.org/sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path, applies the
// embedded migrations, and returns a ready store. ":memory:" is accepted
// for ephemeral deployments.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("transcript: sqlite path is required")
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("transcript: open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: ping sqlite database: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// buildDSN enables WAL, foreign keys and a busy timeout through URI pragmas.
func buildDSN(path string) string {
	const pragmas = "_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		return "file::memory:?cache=shared&" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	gooseInitMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseInitMu.Unlock()
	}()
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("transcript: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("transcript: apply migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveTurn(ctx context.Context, t *Transcript) error {
	if t == nil || t.TurnID.IsZero() {
		return errors.New("transcript: turn id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transcript: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rb := tx.Rollback(); rb != nil && !errors.Is(rb, sql.ErrTxDone) {
			logger.FromContext(ctx).Warn("transcript: rollback failed", "error", rb)
		}
	}()
	const insertTurn = `INSERT INTO transcripts
		(turn_id, session_id, query, outcome, final_response, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertTurn,
		t.TurnID, t.SessionID, t.Query, t.Outcome, t.FinalResponse, t.StartedAt, t.CompletedAt,
	); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateTurn
		}
		return fmt.Errorf("transcript: insert turn: %w", err)
	}
	const insertEntry = `INSERT INTO transcript_entries
		(turn_id, seq, kind, display, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	for i := range t.Entries {
		e := &t.Entries[i]
		payload, err := toJSONText(e.Payload)
		if err != nil {
			return fmt.Errorf("transcript: encode entry payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertEntry,
			t.TurnID, e.Seq, e.Kind, e.Display, payload, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("transcript: insert entry: %w", err)
		}
	}
	const insertTiming = `INSERT INTO transcript_timings
		(turn_id, node, iteration, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?)`
	for i := range t.Timings {
		n := &t.Timings[i]
		if _, err := tx.ExecContext(ctx, insertTiming,
			t.TurnID, n.Node, n.Iteration, n.StartedAt, n.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("transcript: insert timing: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transcript: commit tx: %w", err)
	}
	committed = true
	return nil
}

func (s *SQLiteStore) GetTurn(ctx context.Context, turnID core.ID) (*Transcript, error) {
	const q = `SELECT turn_id, session_id, query, outcome, final_response, started_at, completed_at
		FROM transcripts WHERE turn_id = ?`
	var t Transcript
	err := s.db.QueryRowContext(ctx, q, turnID).Scan(
		&t.TurnID, &t.SessionID, &t.Query, &t.Outcome, &t.FinalResponse, &t.StartedAt, &t.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: get turn: %w", err)
	}
	transcripts := map[core.ID]*Transcript{t.TurnID: &t}
	if err := s.loadEntries(ctx, transcripts); err != nil {
		return nil, err
	}
	if err := s.loadTimings(ctx, transcripts); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]*Transcript, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	const q = `SELECT turn_id, session_id, query, outcome, final_response, started_at, completed_at
		FROM transcripts WHERE session_id = ? ORDER BY completed_at DESC, turn_id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("transcript: list turns: %w", err)
	}
	defer rows.Close()
	out := make([]*Transcript, 0, limit)
	index := make(map[core.ID]*Transcript, limit)
	for rows.Next() {
		var t Transcript
		if err := rows.Scan(
			&t.TurnID, &t.SessionID, &t.Query, &t.Outcome, &t.FinalResponse, &t.StartedAt, &t.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("transcript: scan turn: %w", err)
		}
		out = append(out, &t)
		index[t.TurnID] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: iter turns: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}
	if err := s.loadEntries(ctx, index); err != nil {
		return nil, err
	}
	if err := s.loadTimings(ctx, index); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) loadEntries(ctx context.Context, transcripts map[core.ID]*Transcript) error {
	ids, args := turnIDArgs(transcripts)
	q := `SELECT turn_id, seq, kind, display, payload, created_at FROM transcript_entries
		WHERE turn_id IN (` + questionList(len(ids)) + `) ORDER BY turn_id, seq`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("transcript: load entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			turnID  core.ID
			entry   Entry
			payload sql.NullString
		)
		if err := rows.Scan(&turnID, &entry.Seq, &entry.Kind, &entry.Display, &payload, &entry.CreatedAt); err != nil {
			return fmt.Errorf("transcript: scan entry: %w", err)
		}
		if payload.Valid {
			entry.Payload = json.RawMessage(payload.String)
		}
		if t, ok := transcripts[turnID]; ok {
			t.Entries = append(t.Entries, entry)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("transcript: iter entries: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loadTimings(ctx context.Context, transcripts map[core.ID]*Transcript) error {
	ids, args := turnIDArgs(transcripts)
	q := `SELECT turn_id, node, iteration, started_at, duration_ms FROM transcript_timings
		WHERE turn_id IN (` + questionList(len(ids)) + `) ORDER BY turn_id, id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("transcript: load timings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			turnID     core.ID
			timing     NodeTiming
			durationMS int64
		)
		if err := rows.Scan(&turnID, &timing.Node, &timing.Iteration, &timing.StartedAt, &durationMS); err != nil {
			return fmt.Errorf("transcript: scan timing: %w", err)
		}
		timing.Duration = time.Duration(durationMS) * time.Millisecond
		if t, ok := transcripts[turnID]; ok {
			t.Timings = append(t.Timings, timing)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("transcript: iter timings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close(_ context.Context) error {
	return s.db.Close()
}

// DB exposes the underlying pool for tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func turnIDArgs(transcripts map[core.ID]*Transcript) ([]core.ID, []any) {
	ids := make([]core.ID, 0, len(transcripts))
	args := make([]any, 0, len(transcripts))
	for id := range transcripts {
		ids = append(ids, id)
		args = append(args, id)
	}
	return ids, args
}

// questionList renders n comma-separated placeholders.
func questionList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// toJSONText normalizes a raw payload for TEXT storage; empty payloads
// become NULL.
func toJSONText(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid JSON")
	}
	return string(raw), nil
}
