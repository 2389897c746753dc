// Package ledger keeps a local DuckDB mirror of completed runs and their
// items so summaries and exports work without touching the remote sheet.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/reelsheet/reelsheet/pkg/pipeline"
)

// RunRecord is one persisted pipeline run.
type RunRecord struct {
	RunID      string
	PostURL    string
	SheetID    string
	StartIndex int64
	EndIndex   int64
	ItemCount  int
	Degraded   bool
	Timestamp  time.Time
}

// Summary aggregates the ledger for the reporting surfaces.
type Summary struct {
	TotalRuns    int
	TotalItems   int
	DegradedRuns int
	LastRun      time.Time
	ItemsByType  map[string]int
	ItemsBySheet map[string]int
}

// Ledger wraps the DuckDB database file.
type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger at path. An empty path keeps the
// ledger in memory, which the tests use.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id      VARCHAR PRIMARY KEY,
			post_url    VARCHAR NOT NULL,
			sheet_id    VARCHAR NOT NULL,
			start_index BIGINT NOT NULL,
			end_index   BIGINT NOT NULL,
			item_count  INTEGER NOT NULL,
			degraded    BOOLEAN NOT NULL,
			ts          TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_items (
			run_id     VARCHAR NOT NULL,
			item_index INTEGER NOT NULL,
			item_type  VARCHAR NOT NULL,
			item_name  VARCHAR NOT NULL,
			confidence DOUBLE NOT NULL,
			status     VARCHAR NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// RecordRun implements pipeline.Recorder.
func (l *Ledger) RecordRun(ctx context.Context, result *pipeline.Result) error {
	degraded := false
	for _, o := range result.Outcomes {
		if o.Status != pipeline.StepOK {
			degraded = true
			break
		}
	}

	ts, err := time.Parse(time.RFC3339, result.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, post_url, sheet_id, start_index, end_index, item_count, degraded, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.PostURL, result.SheetID,
		result.StartIndex, result.EndIndex, len(result.Items), degraded, ts)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, it := range result.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_items (run_id, item_index, item_type, item_name, confidence, status)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			result.RunID, it.ItemIndex, string(it.Type), it.Name, it.Confidence, string(it.Status))
		if err != nil {
			return fmt.Errorf("insert run item: %w", err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns the latest n runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, n int) ([]RunRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, post_url, sheet_id, start_index, end_index, item_count, degraded, ts
		 FROM runs ORDER BY ts DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.PostURL, &r.SheetID,
			&r.StartIndex, &r.EndIndex, &r.ItemCount, &r.Degraded, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summarize aggregates the whole ledger.
func (l *Ledger) Summarize(ctx context.Context) (*Summary, error) {
	s := &Summary{
		ItemsByType:  make(map[string]int),
		ItemsBySheet: make(map[string]int),
	}

	var lastRun sql.NullTime
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(item_count), 0),
		        COALESCE(SUM(CASE WHEN degraded THEN 1 ELSE 0 END), 0), MAX(ts)
		 FROM runs`).
		Scan(&s.TotalRuns, &s.TotalItems, &s.DegradedRuns, &lastRun)
	if err != nil {
		return nil, fmt.Errorf("summarize runs: %w", err)
	}
	if lastRun.Valid {
		s.LastRun = lastRun.Time
	}

	byType, err := l.db.QueryContext(ctx,
		`SELECT item_type, COUNT(*) FROM run_items GROUP BY item_type`)
	if err != nil {
		return nil, fmt.Errorf("summarize item types: %w", err)
	}
	defer byType.Close()
	for byType.Next() {
		var t string
		var c int
		if err := byType.Scan(&t, &c); err != nil {
			return nil, err
		}
		s.ItemsByType[t] = c
	}
	if err := byType.Err(); err != nil {
		return nil, err
	}

	bySheet, err := l.db.QueryContext(ctx,
		`SELECT sheet_id, COALESCE(SUM(item_count), 0) FROM runs GROUP BY sheet_id`)
	if err != nil {
		return nil, fmt.Errorf("summarize sheets: %w", err)
	}
	defer bySheet.Close()
	for bySheet.Next() {
		var id string
		var c int
		if err := bySheet.Scan(&id, &c); err != nil {
			return nil, err
		}
		s.ItemsBySheet[id] = c
	}
	return s, bySheet.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// FormatSummary renders a summary as plain text for the CLI and bot.
func FormatSummary(s *Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Runs: %d (%d degraded)\n", s.TotalRuns, s.DegradedRuns)
	fmt.Fprintf(&sb, "Items: %d\n", s.TotalItems)
	if !s.LastRun.IsZero() {
		fmt.Fprintf(&sb, "Last run: %s\n", s.LastRun.UTC().Format(time.RFC3339))
	}
	for t, c := range s.ItemsByType {
		fmt.Fprintf(&sb, "  %s: %d\n", t, c)
	}
	return sb.String()
}
