// Package store persists analysis sessions in SQLite: the template a session
// was created from, its current dataset and the snapshots it went through.
package store

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/frame"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Session is the stored description of an analysis session.
type Session struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Template  *api.Template `json:"template"`
	Seed      uint64        `json:"seed"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Store is a SQLite-backed session store. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// timeFormat has a fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func now() string { return time.Now().UTC().Format(timeFormat) }

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeFormat, v)
	return t
}

// CreateSession stores a new session with its dataset and returns it.
func (s *Store) CreateSession(ctx context.Context, tpl *api.Template, seed uint64, datasetName string, data *frame.Frame) (Session, error) {
	tplJSON, err := json.Marshal(tpl)
	if err != nil {
		return Session{}, fmt.Errorf("marshal template: %w", err)
	}
	csv, err := encodeFrame(data)
	if err != nil {
		return Session{}, err
	}

	sess := Session{ID: uuid.NewString(), Name: tpl.Name, Template: tpl, Seed: seed}
	ts := now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, name, template_json, seed, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, string(tplJSON), int64(seed), ts, ts,
	); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (session_id, name, csv, rows, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, datasetName, csv, data.Len(), ts,
	); err != nil {
		return Session{}, fmt.Errorf("insert dataset: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("commit session: %w", err)
	}
	sess.CreatedAt = parseTime(ts)
	sess.UpdatedAt = sess.CreatedAt
	return sess, nil
}

// GetSession returns the session with the given id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, template_json, seed, created_at, updated_at FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, err
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, template_json, seed, created_at, updated_at FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess             Session
		tplJSON          string
		seed             int64
		created, updated string
	)
	if err := row.Scan(&sess.ID, &sess.Name, &tplJSON, &seed, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session row: %w", err)
	}
	sess.Template = &api.Template{}
	if err := json.Unmarshal([]byte(tplJSON), sess.Template); err != nil {
		return Session{}, fmt.Errorf("unmarshal template of session %s: %w", sess.ID, err)
	}
	sess.Seed = uint64(seed)
	sess.CreatedAt = parseTime(created)
	sess.UpdatedAt = parseTime(updated)
	return sess, nil
}

// DeleteSession removes a session with its dataset and snapshots.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// UpdateTemplate replaces the template of a session, e.g. after a step was
// inserted into its pipeline.
func (s *Store) UpdateTemplate(ctx context.Context, id string, tpl *api.Template) error {
	tplJSON, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET name = ?, template_json = ?, updated_at = ? WHERE id = ?`,
		tpl.Name, string(tplJSON), now(), id)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// SaveDataset replaces the dataset of a session.
func (s *Store) SaveDataset(ctx context.Context, id, name string, data *frame.Frame) error {
	csv, err := encodeFrame(data)
	if err != nil {
		return err
	}
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET name = ?, csv = ?, rows = ?, updated_at = ? WHERE session_id = ?`,
		name, csv, data.Len(), ts, id)
	if err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.touch(ctx, id, ts)
}

// LoadDataset returns the dataset name and contents of a session.
func (s *Store) LoadDataset(ctx context.Context, id string) (string, *frame.Frame, error) {
	var (
		name string
		csv  []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT name, csv FROM datasets WHERE session_id = ?`, id).Scan(&name, &csv)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", nil, fmt.Errorf("query dataset: %w", err)
	}
	data, err := frame.ReadCSV(bytes.NewReader(csv))
	if err != nil {
		return "", nil, fmt.Errorf("decode dataset of session %s: %w", id, err)
	}
	return name, data, nil
}

// SaveSnapshot appends a snapshot to the history of a session.
func (s *Store) SaveSnapshot(ctx context.Context, id string, info *api.WorkflowInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	ts := now()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, info_json, created_at) VALUES (?, ?, ?)`,
		id, string(payload), ts,
	); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return s.touch(ctx, id, ts)
}

// LatestSnapshot returns the most recent snapshot of a session, or nil when
// none was saved yet.
func (s *Store) LatestSnapshot(ctx context.Context, id string) (*api.WorkflowInfo, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT info_json FROM snapshots WHERE session_id = ? ORDER BY seq DESC LIMIT 1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return api.DecodeInfo([]byte(payload))
}

// CountSnapshots returns the number of snapshots stored for a session.
func (s *Store) CountSnapshots(ctx context.Context, id string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE session_id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

func (s *Store) touch(ctx context.Context, id, ts string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, ts, id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func encodeFrame(data *frame.Frame) ([]byte, error) {
	if data == nil {
		return nil, errors.New("no dataset")
	}
	var buf bytes.Buffer
	if err := data.WriteCSV(&buf); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return buf.Bytes(), nil
}
