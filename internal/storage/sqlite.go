// Package storage records scan history in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fortio.org/safecast"
	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/xab-mack/solguard/internal/model"
)

// DB is scan history backed by SQLite.
type DB struct {
	conn *sql.DB
}

// Scan is one recorded invocation of the scanner.
type Scan struct {
	ID        int64
	StartedAt time.Time
	Duration  time.Duration
	Target    string
	Files     int
	Findings  int
	Score     int
	RiskLabel string
	Counts    map[model.Severity]int
	Partial   bool
}

// FindingRow is the persisted summary of one finding.
type FindingRow struct {
	RuleID      string
	Severity    model.Severity
	File        string
	Line        int
	Fingerprint string
}

// Open opens (and creates if missing) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	c, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db := &DB{conn: c}
	if err := db.createSchema(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) createSchema(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS scans (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  started_at  TEXT NOT NULL,     -- RFC3339Nano
  duration_ms INTEGER NOT NULL,
  target      TEXT NOT NULL,
  files       INTEGER NOT NULL,
  findings    INTEGER NOT NULL,
  score       INTEGER NOT NULL,
  risk_label  TEXT NOT NULL,
  critical    INTEGER NOT NULL,
  high        INTEGER NOT NULL,
  medium      INTEGER NOT NULL,
  low         INTEGER NOT NULL,
  partial     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS findings (
  scan_id     INTEGER NOT NULL,
  rule_id     TEXT NOT NULL,
  severity    TEXT NOT NULL,
  file        TEXT,
  line        INTEGER NOT NULL,
  fingerprint TEXT NOT NULL,
  FOREIGN KEY(scan_id) REFERENCES scans(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_findings_scan ON findings(scan_id);
CREATE INDEX IF NOT EXISTS idx_findings_rule ON findings(rule_id);
`)
	return err
}

// Record stores a scan and its findings and returns the new scan id.
func (db *DB) Record(ctx context.Context, target string, started time.Time, elapsed time.Duration, files int, r *model.Report) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	partial := 0
	if r.Metadata.Partial() {
		partial = 1
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO scans (started_at, duration_ms, target, files, findings, score, risk_label, critical, high, medium, low, partial)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		started.UTC().Format(time.RFC3339Nano), elapsed.Milliseconds(), target, files, len(r.Findings), r.Score, r.RiskLabel,
		r.SeverityCounts[model.SeverityCritical], r.SeverityCounts[model.SeverityHigh],
		r.SeverityCounts[model.SeverityMedium], r.SeverityCounts[model.SeverityLow], partial,
	)
	if err != nil {
		return 0, fmt.Errorf("insert scan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(r.Findings) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO findings (scan_id, rule_id, severity, file, line, fingerprint) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		for _, f := range r.Findings {
			if _, err := stmt.ExecContext(ctx, id, f.RuleID, string(f.Severity), f.File, f.Start.Line, f.Fingerprint); err != nil {
				return 0, fmt.Errorf("insert finding %s: %w", f.RuleID, err)
			}
		}
	}
	return id, tx.Commit()
}

// List returns the most recent scans, newest first. limit <= 0 returns all.
func (db *DB) List(ctx context.Context, limit int) ([]Scan, error) {
	q := `SELECT id, started_at, duration_ms, target, files, findings, score, risk_label, critical, high, medium, low, partial
          FROM scans ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		var (
			s                                  Scan
			started                            string
			durMS                              int64
			files, findings, score             int64
			critical, high, medium, low, parts int64
		)
		if err := rows.Scan(&s.ID, &started, &durMS, &s.Target, &files, &findings, &score, &s.RiskLabel,
			&critical, &high, &medium, &low, &parts); err != nil {
			return nil, err
		}
		if s.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("scan %d: bad timestamp: %w", s.ID, err)
		}
		s.Duration = time.Duration(durMS) * time.Millisecond
		ints, err := toInts(files, findings, score, critical, high, medium, low)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", s.ID, err)
		}
		s.Files, s.Findings, s.Score = ints[0], ints[1], ints[2]
		s.Counts = map[model.Severity]int{
			model.SeverityCritical: ints[3],
			model.SeverityHigh:     ints[4],
			model.SeverityMedium:   ints[5],
			model.SeverityLow:      ints[6],
		}
		s.Partial = parts != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// Findings returns the findings recorded for a scan in insertion order.
func (db *DB) Findings(ctx context.Context, scanID int64) ([]FindingRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT rule_id, severity, COALESCE(file, ''), line, fingerprint FROM findings WHERE scan_id = ? ORDER BY rowid`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FindingRow
	for rows.Next() {
		var (
			f    FindingRow
			sev  string
			line int64
		)
		if err := rows.Scan(&f.RuleID, &sev, &f.File, &line, &f.Fingerprint); err != nil {
			return nil, err
		}
		if f.Line, err = safecast.Conv[int](line); err != nil {
			return nil, err
		}
		f.Severity = model.Severity(sev)
		out = append(out, f)
	}
	return out, rows.Err()
}

func toInts(vals ...int64) ([]int, error) {
	out := make([]int, len(vals))
	for i, v := range vals {
		n, err := safecast.Conv[int](v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
