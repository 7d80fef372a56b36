package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// RunIDColumn is the column TableView adds to every merged record,
// holding the originating run's ID.
const RunIDColumn = "run_id"

// IsRunDir reports whether path looks like a run directory, meaning it
// contains the backing store file. This is the predicate Collection applies
// while scanning; keeping it a pure path check isolates the skip-silently
// policy from the stricter open path.
func IsRunDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, storeFileName))
	return err == nil && info.Mode().IsRegular()
}

// HasSideChannel reports whether the run directory carries a side-channel
// mirror, i.e. whether visualization tooling has anything to show for it.
func HasSideChannel(path string) bool {
	info, err := os.Stat(filepath.Join(path, sideChannelDirName))
	return err == nil && info.IsDir()
}

// Collection is a read-only aggregator over the run directories under one
// root. It never writes, so it tolerates other processes concurrently
// creating new runs; a run created after Open scanned the root is simply
// not included.
type Collection struct {
	root   string
	runs   []string
	codecs map[Kind]Codec
}

// OpenCollection scans the immediate subdirectories of root and keeps the
// ones that look like run directories, in lexicographic order. Entries
// that are not runs are skipped, not errors; only an unreadable root
// fails.
func OpenCollection(root string, opts ...Option) (*Collection, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan collection root: %w", err)
	}
	c := &Collection{root: root, codecs: o.codecs}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if IsRunDir(filepath.Join(root, e.Name())) {
			c.runs = append(c.runs, e.Name())
		}
	}
	return c, nil
}

// Runs returns the discovered run IDs in discovery order.
func (c *Collection) Runs() []string {
	return append([]string(nil), c.runs...)
}

// RunDir returns the directory of a discovered run.
func (c *Collection) RunDir(runID string) string {
	return filepath.Join(c.root, runID)
}

// TableInfo describes one table of one run.
type TableInfo struct {
	Name string
	Rows int64
}

// RunTables lists the tables declared by one run with their row counts.
// Unlike the lenient merge path, asking about a specific run surfaces its
// errors: a missing run is NOT_FOUND, a corrupt one fails to open.
func (c *Collection) RunTables(ctx context.Context, runID string) ([]TableInfo, error) {
	dir := c.RunDir(runID)
	if !IsRunDir(dir) {
		return nil, newNotFoundError("run", runID)
	}
	db, err := openRunReadOnly(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT name FROM _runlog_tables ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list tables of %s: %w", runID, err)
	}
	defer rows.Close()

	var infos []TableInfo
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables of %s: %w", runID, err)
		}
		var count int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", physicalTableName(name))
		if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return nil, fmt.Errorf("list tables of %s: %w", runID, err)
		}
		infos = append(infos, TableInfo{Name: name, Rows: count})
	}
	return infos, rows.Err()
}

// TableView merges the named table across every discovered run into one
// read-only view. Each record gains a trailing run_id column. Runs lacking
// the table are skipped, as are runs whose backing store cannot be read:
// one bad directory must not invalidate a sweep across many runs, so the
// leniency here is deliberate. Returns an empty view if no run has the
// table.
//
// Schemas are reconciled by column union, in first-appearance order across
// runs; a run's records get nulls for columns it never declared. Per-run
// row order and run-discovery order are both preserved.
func (c *Collection) TableView(ctx context.Context, name string) (*View, error) {
	var unionCols []string
	seen := make(map[string]bool)
	type runPart struct {
		runID   string
		columns []string
		records [][]any
	}
	var parts []runPart

	for _, runID := range c.runs {
		view, err := c.readRunTable(ctx, runID, name)
		if err != nil || view == nil {
			// Missing table or unreadable run: skip, keep sweeping.
			continue
		}
		for _, col := range view.Columns() {
			if !seen[col] {
				seen[col] = true
				unionCols = append(unionCols, col)
			}
		}
		parts = append(parts, runPart{runID: runID, columns: view.Columns(), records: view.Records()})
	}

	columns := append(append([]string(nil), unionCols...), RunIDColumn)
	merged := &View{columns: columns}
	for _, part := range parts {
		pos := make(map[string]int, len(part.columns))
		for i, col := range part.columns {
			pos[col] = i
		}
		for _, rec := range part.records {
			row := make([]any, len(columns))
			for i, col := range unionCols {
				if j, ok := pos[col]; ok {
					row[i] = rec[j]
				}
			}
			row[len(row)-1] = part.runID
			merged.records = append(merged.records, row)
		}
	}
	return merged, nil
}

// readRunTable loads one run's copy of the table. A nil view with nil
// error means the run does not declare it.
func (c *Collection) readRunTable(ctx context.Context, runID, name string) (*View, error) {
	dir := c.RunDir(runID)
	db, err := openRunReadOnly(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var schemaJSON string
	err = db.QueryRowContext(ctx,
		"SELECT schema FROM _runlog_tables WHERE name = ?", name).Scan(&schemaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schema of %s in %s: %w", name, runID, err)
	}
	schema, err := unmarshalSchema(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("read schema of %s in %s: %w", name, runID, err)
	}
	return readTable(ctx, db, dir, name, schema, c.codecs)
}

// openRunReadOnly opens a run's backing store without taking the writer
// role.
func openRunReadOnly(dir string) (*sql.DB, error) {
	dsn := "file:" + filepath.Join(dir, storeFileName) + "?mode=ro"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open backing store read-only: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open backing store read-only: %w", err)
	}
	return db, nil
}
