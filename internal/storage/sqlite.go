package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sjawhar/ghost-tutor/internal/call"
)

const (
	RecapPending   = "pending"
	RecapRunning   = "running"
	RecapCompleted = "completed"
	RecapFailed    = "failed"
)

// timestampLayout keeps every stored time the same width so text ordering in
// SQL matches chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Companion struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Subject         string    `json:"subject"`
	Topic           string    `json:"topic"`
	Voice           string    `json:"voice"`
	Style           string    `json:"style"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryEntry is one concluded call.
type HistoryEntry struct {
	CallID        string    `json:"call_id"`
	CompanionID   string    `json:"companion_id"`
	CompanionName string    `json:"companion_name"`
	Subject       string    `json:"subject"`
	UserName      string    `json:"user_name"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	Recap         string    `json:"recap"`
	RecapStatus   string    `json:"recap_status"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "ghost-tutor.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

var schema = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
	`CREATE TABLE IF NOT EXISTS companions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		subject TEXT NOT NULL,
		topic TEXT NOT NULL,
		voice TEXT NOT NULL DEFAULT '',
		style TEXT NOT NULL DEFAULT '',
		duration_minutes INTEGER NOT NULL DEFAULT 15,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS session_history (
		call_id TEXT PRIMARY KEY,
		companion_id TEXT NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL,
		recap TEXT NOT NULL DEFAULT '',
		recap_status TEXT NOT NULL DEFAULT 'pending'
	)`,
	`CREATE TABLE IF NOT EXISTS transcript_entries (
		call_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		PRIMARY KEY (call_id, position),
		FOREIGN KEY(call_id) REFERENCES session_history(call_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS recap_requests (
		call_id TEXT NOT NULL,
		transcript_hash TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(call_id, transcript_hash)
	)`,
	"CREATE INDEX IF NOT EXISTS idx_companions_subject ON companions(subject)",
	"CREATE INDEX IF NOT EXISTS idx_history_ended_at ON session_history(ended_at)",
}

func (s *SQLiteStore) init() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(stmt, "\n")
	return strings.TrimSpace(line)
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateCompanion(ctx context.Context, c Companion) (Companion, error) {
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Subject) == "" || strings.TrimSpace(c.Topic) == "" {
		return Companion{}, errors.New("companion name, subject and topic are required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DurationMinutes <= 0 {
		c.DurationMinutes = 15
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companions(id, name, subject, topic, voice, style, duration_minutes, created_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Subject, c.Topic, c.Voice, c.Style, c.DurationMinutes, c.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return Companion{}, fmt.Errorf("create companion %s: %w", c.ID, err)
	}
	return c, nil
}

func (s *SQLiteStore) GetCompanion(ctx context.Context, id string) (Companion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, subject, topic, voice, style, duration_minutes, created_at FROM companions WHERE id = ?`, id)
	c, err := scanCompanion(row)
	if err != nil {
		return Companion{}, fmt.Errorf("get companion %s: %w", id, err)
	}
	return c, nil
}

// ListCompanions returns companions newest first, optionally filtered by subject.
func (s *SQLiteStore) ListCompanions(ctx context.Context, subject string) ([]Companion, error) {
	query := `SELECT id, name, subject, topic, voice, style, duration_minutes, created_at FROM companions`
	var args []any
	if subject != "" {
		query += ` WHERE subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list companions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	companions := make([]Companion, 0, 16)
	for rows.Next() {
		c, err := scanCompanion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan companion: %w", err)
		}
		companions = append(companions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companions: %w", err)
	}
	return companions, nil
}

// AddToSessionHistory stores a concluded call with its transcript. It
// reports false when the call id was already recorded.
func (s *SQLiteStore) AddToSessionHistory(ctx context.Context, rec call.HistoryRecord) (bool, error) {
	if strings.TrimSpace(rec.CallID) == "" {
		return false, errors.New("call id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_history(call_id, companion_id, user_name, started_at, ended_at, recap_status) VALUES(?, ?, ?, ?, ?, ?)`,
		rec.CallID, rec.CompanionID, rec.UserName,
		rec.StartedAt.UTC().Format(timestampLayout), rec.EndedAt.UTC().Format(timestampLayout),
		RecapPending,
	)
	if err != nil {
		return false, fmt.Errorf("insert history for call %s: %w", rec.CallID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("history rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	// Entries arrive newest first; positions count from the oldest.
	last := len(rec.Transcript) - 1
	for i := range rec.Transcript {
		entry := rec.Transcript[last-i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transcript_entries(call_id, position, role, content) VALUES(?, ?, ?, ?)`,
			rec.CallID, i, string(entry.Role), entry.Content,
		); err != nil {
			return false, fmt.Errorf("insert transcript entry %d for call %s: %w", i, rec.CallID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit history for call %s: %w", rec.CallID, err)
	}
	return true, nil
}

const historySelect = `SELECT h.call_id, h.companion_id, COALESCE(c.name, ''), COALESCE(c.subject, ''), h.user_name,
		h.started_at, h.ended_at, h.recap, h.recap_status
	FROM session_history h LEFT JOIN companions c ON c.id = h.companion_id`

func (s *SQLiteStore) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, historySelect+` ORDER BY h.ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, callID string) (HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, historySelect+` WHERE h.call_id = ?`, callID)
	e, err := scanHistory(row)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("get history %s: %w", callID, err)
	}
	return e, nil
}

// GetTranscript returns a call transcript oldest first.
func (s *SQLiteStore) GetTranscript(ctx context.Context, callID string) ([]call.TranscriptEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM transcript_entries WHERE call_id = ? ORDER BY position ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("query transcript for call %s: %w", callID, err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]call.TranscriptEntry, 0, 32)
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan transcript entry for call %s: %w", callID, err)
		}
		entries = append(entries, call.TranscriptEntry{Role: call.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows for call %s: %w", callID, err)
	}
	return entries, nil
}

func (s *SQLiteStore) UpdateRecap(ctx context.Context, callID, recap, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE session_history SET recap = ?, recap_status = ? WHERE call_id = ?`, recap, status, callID)
	if err != nil {
		return fmt.Errorf("update recap for call %s: %w", callID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update recap rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) ClaimRecapRequest(ctx context.Context, callID, transcriptHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO recap_requests(call_id, transcript_hash) VALUES(?, ?)`, callID, transcriptHash)
	if err != nil {
		return false, fmt.Errorf("claim recap request for call %s: %w", callID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim recap rows affected: %w", err)
	}
	return rows > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompanion(row scanner) (Companion, error) {
	var c Companion
	var createdAt string
	if err := row.Scan(&c.ID, &c.Name, &c.Subject, &c.Topic, &c.Voice, &c.Style, &c.DurationMinutes, &createdAt); err != nil {
		return Companion{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Companion{}, fmt.Errorf("parse created_at: %w", err)
	}
	c.CreatedAt = parsed
	return c, nil
}

func scanHistory(row scanner) (HistoryEntry, error) {
	var e HistoryEntry
	var startedAt, endedAt string
	if err := row.Scan(&e.CallID, &e.CompanionID, &e.CompanionName, &e.Subject, &e.UserName,
		&startedAt, &endedAt, &e.Recap, &e.RecapStatus); err != nil {
		return HistoryEntry{}, err
	}

	var err error
	if e.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return HistoryEntry{}, fmt.Errorf("parse started_at: %w", err)
	}
	if e.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
		return HistoryEntry{}, fmt.Errorf("parse ended_at: %w", err)
	}
	return e, nil
}
