package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CharanSaiVaddi/purrctl/internal/catalog"
)

var ErrNoFSPath = errors.New("repo needs an fs_path")

// Catalog holds the repo and raster records the search endpoint serves.
type Catalog interface {
	SaveRepo(doc catalog.Document) (catalog.Document, error)
	ListRepos() ([]catalog.Document, error)
	SaveRasters(docs []catalog.Document) ([]catalog.Document, error)
	catalog.RasterQuerier
}

// SaveRepo stores a repo keyed by fs_path, replacing an earlier one.
func (s *SQLiteStorage) SaveRepo(doc catalog.Document) (catalog.Document, error) {
	fsPath, _ := doc["fs_path"].(string)
	if fsPath == "" {
		return nil, ErrNoFSPath
	}
	out := stamp(doc, s.now().UTC())
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(`INSERT INTO repos(fs_path,doc,created_at,updated_at) VALUES(?,?,?,?)
		ON CONFLICT(fs_path) DO UPDATE SET doc=excluded.doc, updated_at=excluded.updated_at`,
		fsPath, string(raw), out["created_at"], out["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("insert repo: %w", err)
	}
	return out, nil
}

func (s *SQLiteStorage) ListRepos() ([]catalog.Document, error) {
	rows, err := s.db.Query(`SELECT doc FROM repos ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]catalog.Document, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d catalog.Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode repo: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveRasters inserts a batch in one transaction. Every raster needs a uwi.
func (s *SQLiteStorage) SaveRasters(docs []catalog.Document) ([]catalog.Document, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := s.now().UTC()
	out := make([]catalog.Document, 0, len(docs))
	for i, d := range docs {
		uwi, _ := d["uwi"].(string)
		if uwi == "" {
			return nil, fmt.Errorf("raster %d has no uwi", i)
		}
		o := stamp(d, now)
		raw, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(`INSERT INTO rasters(uwi,wordz,doc,created_at) VALUES(?,?,?,?)`,
			uwi, wordzOf(d["wordz"]), string(raw), now); err != nil {
			return nil, fmt.Errorf("insert raster: %w", err)
		}
		out = append(out, o)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// QueryRasters matches uwi prefixes case-insensitively and wordz as a
// lowercase substring.
func (s *SQLiteStorage) QueryRasters(prefix, wordz string, after int64, limit int) ([]catalog.Document, int64, bool, error) {
	wordz = strings.ToLower(wordz)
	rows, err := s.db.Query(`SELECT seq, doc FROM rasters
		WHERE seq > ? AND lower(substr(uwi, 1, length(?))) = lower(?)
		AND (? = '' OR instr(wordz, ?) > 0)
		ORDER BY seq LIMIT ?`, after, prefix, prefix, wordz, wordz, limit+1)
	if err != nil {
		return nil, 0, false, err
	}
	defer rows.Close()

	var (
		out  []catalog.Document
		last int64
		more bool
	)
	for rows.Next() {
		if len(out) == limit {
			more = true
			break
		}
		var seq int64
		var raw string
		if err := rows.Scan(&seq, &raw); err != nil {
			return nil, 0, false, err
		}
		var d catalog.Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, 0, false, fmt.Errorf("decode raster: %w", err)
		}
		out = append(out, d)
		last = seq
	}
	return out, last, more, rows.Err()
}

func stamp(doc catalog.Document, now time.Time) catalog.Document {
	out := make(catalog.Document, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}
	out["created_at"] = now.Format(time.RFC3339Nano)
	out["updated_at"] = out["created_at"]
	return out
}

// wordzOf flattens the searchable words of a raster into one lowercase string.
func wordzOf(v any) string {
	switch w := v.(type) {
	case string:
		return strings.ToLower(w)
	case []any:
		parts := make([]string, 0, len(w))
		for _, p := range w {
			if s, ok := p.(string); ok {
				parts = append(parts, strings.ToLower(s))
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
