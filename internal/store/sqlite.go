package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spigell/screener/internal/interview"
)

const defaultSQLitePath = "screener.db"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	profile    TEXT NOT NULL,
	status     TEXT NOT NULL,
	outcome    TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	seq        INTEGER NOT NULL,
	speaker    TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);`

// SQLiteStore persists sessions through the pure Go modernc driver.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path = strings.TrimSpace(path); path == "" {
		path = defaultSQLitePath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}

	return &SQLiteStore{db: db}, nil
}

// timeLayout keeps every fraction digit so stored strings sort in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

func (s *SQLiteStore) Create(ctx context.Context, id string, profile interview.CandidateProfile, at time.Time) error {
	payload, err := json.Marshal(profile.Clone())
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, profile, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(payload), string(interview.StatusCreated), formatTime(at), formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, id string, turn interview.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, formatTime(turn.Timestamp), id)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("append turn to %s: %w", id, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, seq, speaker, text, created_at)
		 SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ? FROM turns WHERE session_id = ?`,
		id, string(turn.Speaker), turn.Text, formatTime(turn.Timestamp), id,
	)
	if err != nil {
		return fmt.Errorf("insert turn for %s: %w", id, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Finalize(ctx context.Context, id string, outcome interview.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, outcome = ?, updated_at = ? WHERE id = ?`,
		string(outcome.Status), string(payload), formatTime(outcome.EndedAt), id,
	)
	if err != nil {
		return fmt.Errorf("finalize %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finalize %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, profile, status, outcome, created_at, updated_at FROM sessions WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", id, err)
	}

	if rec.Turns, err = s.turns(ctx, id); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, profile, status, outcome, created_at, updated_at FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	rows.Close()

	// Turns are loaded after the cursor closes: the pool has a single connection.
	for i := range out {
		if out[i].Turns, err = s.turns(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec                  Record
		profile, status      string
		outcome              sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &profile, &status, &outcome, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}

	if err := json.Unmarshal([]byte(profile), &rec.Profile); err != nil {
		return Record{}, fmt.Errorf("decode profile: %w", err)
	}
	rec.Profile = rec.Profile.Clone()

	parsed, err := interview.ParseStatus(status)
	if err != nil {
		return Record{}, err
	}
	rec.Status = parsed

	if outcome.Valid && outcome.String != "" {
		var o interview.Outcome
		if err := json.Unmarshal([]byte(outcome.String), &o); err != nil {
			return Record{}, fmt.Errorf("decode outcome: %w", err)
		}
		rec.Outcome = &o
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Record{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) turns(ctx context.Context, id string) ([]interview.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT speaker, text, created_at FROM turns WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load turns for %s: %w", id, err)
	}
	defer rows.Close()

	turns := []interview.Turn{}
	for rows.Next() {
		var speaker, text, at string
		if err := rows.Scan(&speaker, &text, &at); err != nil {
			return nil, fmt.Errorf("scan turn for %s: %w", id, err)
		}
		ts, err := parseTime(at)
		if err != nil {
			return nil, fmt.Errorf("parse turn time: %w", err)
		}
		turns = append(turns, interview.Turn{Speaker: interview.Speaker(speaker), Text: text, Timestamp: ts})
	}
	return turns, rows.Err()
}
