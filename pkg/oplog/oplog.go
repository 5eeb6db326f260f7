// Package oplog keeps a best-effort local journal of remediation and restore
// operations in SQLite, separate from the primary store, so operators can
// reconstruct what the supervisor did even when the relational store was the
// thing being recovered.
package oplog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one journaled operation.
type Entry struct {
	Op     string    `json:"op"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Journal is safe for concurrent use. All methods tolerate a nil receiver so
// the journal stays optional for callers.
type Journal struct {
	db *sql.DB
}

// Open creates (or opens) the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal mkdir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ops(op TEXT, detail TEXT, ts INTEGER);
CREATE INDEX IF NOT EXISTS idx_ops_ts ON ops(ts);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends an operation. Best-effort: failures are logged and dropped.
func (j *Journal) Record(op, detail string) {
	if j == nil || j.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := j.db.ExecContext(ctx, `INSERT INTO ops(op, detail, ts) VALUES(?,?,?)`, op, detail, time.Now().Unix()); err != nil {
		log.Printf("oplog record failed: %v", err)
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rows, err := j.db.QueryContext(ctx, `SELECT op, detail, ts FROM ops ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Op, &e.Detail, &ts); err != nil {
			continue
		}
		e.At = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Purge drops entries older than the retention window.
func (j *Journal) Purge(olderThan time.Duration) {
	if j == nil || j.db == nil {
		return
	}
	cutoff := time.Now().Add(-olderThan).Unix()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := j.db.ExecContext(ctx, `DELETE FROM ops WHERE ts < ?`, cutoff); err != nil {
		log.Printf("oplog purge failed: %v", err)
	}
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
