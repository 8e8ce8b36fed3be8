package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CharanSaiVaddi/purrctl/internal/job"
)

var ErrNotFound = errors.New("job not found")

// JobStore persists job documents for the development jobs API.
type JobStore interface {
	SaveJob(doc job.Snapshot) (job.Snapshot, error)
	UpdateJob(id string, fields job.Snapshot) (job.Snapshot, error)
	GetJobByID(id string) (job.Snapshot, error)
	ListByStatus(status job.Status) ([]job.Snapshot, error)
	DeleteExpired(before time.Time) (int64, error)
}

// Journal keeps a local record of finished submission cycles.
type Journal interface {
	RecordCompletion(c job.Completion) error
	ListCompletions(outcome job.Outcome, limit int) ([]job.Completion, error)
}

type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStorage() *SQLiteStorage { return &SQLiteStorage{now: time.Now} }

func (s *SQLiteStorage) Init(path string) error {
	if path == "" {
		path = "purr.db"
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return err
	}
	s.db = db
	return s.migrate()
}

func (s *SQLiteStorage) migrate() error {
	q := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		directive TEXT,
		status TEXT,
		ttl INTEGER,
		doc TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS jobs_status ON jobs(status);
	CREATE TABLE IF NOT EXISTS completions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT,
		directive TEXT,
		outcome TEXT,
		status TEXT,
		polls INTEGER,
		snapshot TEXT,
		completed_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS repos (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		fs_path TEXT NOT NULL UNIQUE,
		doc TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS rasters (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		uwi TEXT NOT NULL,
		wordz TEXT,
		doc TEXT NOT NULL,
		created_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS rasters_uwi ON rasters(uwi);
	`
	_, err := s.db.Exec(q)
	return err
}

func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveJob inserts a new job document, assigning an id when it has none.
func (s *SQLiteStorage) SaveJob(doc job.Snapshot) (job.Snapshot, error) {
	out := make(job.Snapshot, len(doc)+3)
	for k, v := range doc {
		out[k] = v
	}
	if out.ID() == "" {
		out["id"] = uuid.New().String()
	}
	now := s.now().UTC()
	out["created_at"] = now.Format(time.RFC3339Nano)
	out["updated_at"] = out["created_at"]

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	ttl, _ := Int64(out["ttl"])
	directive, _ := out["directive"].(string)
	_, err = s.db.Exec(`INSERT INTO jobs(id,directive,status,ttl,doc,created_at,updated_at) VALUES(?,?,?,?,?,?,?)`,
		out.ID(), directive, string(out.Status()), ttl, string(raw), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return out, nil
}

// UpdateJob merges fields into the stored document. The id cannot change.
func (s *SQLiteStorage) UpdateJob(id string, fields job.Snapshot) (job.Snapshot, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	doc, err := scanDoc(tx.QueryRow(`SELECT doc FROM jobs WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		if k == "id" || k == "created_at" {
			continue
		}
		doc[k] = v
	}
	now := s.now().UTC()
	doc["updated_at"] = now.Format(time.RFC3339Nano)

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	ttl, _ := Int64(doc["ttl"])
	if _, err := tx.Exec(`UPDATE jobs SET status=?, ttl=?, doc=?, updated_at=? WHERE id=?`,
		string(doc.Status()), ttl, string(raw), now, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLiteStorage) GetJobByID(id string) (job.Snapshot, error) {
	return scanDoc(s.db.QueryRow(`SELECT doc FROM jobs WHERE id = ?`, id))
}

func (s *SQLiteStorage) ListByStatus(status job.Status) ([]job.Snapshot, error) {
	rows, err := s.db.Query(`SELECT doc FROM jobs WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []job.Snapshot
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// DeleteExpired removes jobs whose ttl is set and earlier than before.
func (s *SQLiteStorage) DeleteExpired(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM jobs WHERE ttl > 0 AND ttl < ?`, before.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStorage) RecordCompletion(c job.Completion) error {
	var snap []byte
	if c.Snapshot != nil {
		var err error
		if snap, err = json.Marshal(c.Snapshot); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(`INSERT INTO completions(job_id,directive,outcome,status,polls,snapshot,completed_at) VALUES(?,?,?,?,?,?,?)`,
		c.JobID, c.Directive, string(c.Outcome), string(c.Status), c.Polls, string(snap), c.CompletedAt)
	return err
}

// ListCompletions returns the newest completions first. An empty outcome
// matches all of them; limit <= 0 means no limit.
func (s *SQLiteStorage) ListCompletions(outcome job.Outcome, limit int) ([]job.Completion, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT job_id,directive,outcome,status,polls,snapshot,completed_at FROM completions
		WHERE (? = '' OR outcome = ?) ORDER BY seq DESC LIMIT ?`, string(outcome), string(outcome), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []job.Completion
	for rows.Next() {
		var c job.Completion
		var outc, status, snap string
		if err := rows.Scan(&c.JobID, &c.Directive, &outc, &status, &c.Polls, &snap, &c.CompletedAt); err != nil {
			return nil, err
		}
		c.Outcome = job.Outcome(outc)
		c.Status = job.Status(status)
		if snap != "" {
			if err := json.Unmarshal([]byte(snap), &c.Snapshot); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDoc(row scanner) (job.Snapshot, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var doc job.Snapshot
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return doc, nil
}

// Int64 reads an integer out of a decoded JSON value.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
