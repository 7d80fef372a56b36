package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// storeFileName is the backing SQLite database inside a run directory.
	// Its presence is what marks a directory as a run.
	storeFileName = "store.db"

	// saveDirName holds side files for KindBlob and KindState cells.
	saveDirName = "save"

	// sideChannelDirName holds the scalar time-series mirror. Visualization
	// tooling treats its presence as "this run can be displayed".
	sideChannelDirName = "tbmetrics"
)

// metaTableSQL declares the table registry. One row per logical table,
// holding the declared schema in column order.
const metaTableSQL = `
CREATE TABLE IF NOT EXISTS _runlog_tables (
	name   TEXT PRIMARY KEY,
	schema TEXT NOT NULL
)`

// Store owns one run directory: its backing database, the namespace of
// tables inside it, and the side-channel mirror.
//
// A Store is not safe for concurrent use; each logical writer owns one
// Store instance. See the package documentation for the multi-process
// model.
type Store struct {
	root   string
	dir    string
	runID  string
	db     *sql.DB
	codecs map[Kind]Codec
	tables map[string]*Table
	side   *sideChannel
	closed bool
}

// Open opens or creates the run directory root/runID.
//
// With an empty runID a fresh globally-unique ID is generated; collision
// probability is treated as negligible rather than detected. If the
// directory already exists it is reopened: every table registered in the
// meta table is reloaded along with its persisted row count, so writing
// resumes where the previous process stopped.
func Open(root, runID string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if runID == "" {
		runID = uuid.NewString()
	}
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(filepath.Join(dir, saveDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, storeFileName))
	if err != nil {
		return nil, fmt.Errorf("open backing store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open backing store: %w", err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY from our own pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(metaTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create meta table: %w", err)
	}

	s := &Store{
		root:   root,
		dir:    dir,
		runID:  runID,
		db:     db,
		codecs: o.codecs,
		tables: make(map[string]*Table),
	}
	if err := s.loadTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// loadTables reloads previously declared tables from the meta table.
func (s *Store) loadTables() error {
	rows, err := s.db.Query("SELECT name, schema FROM _runlog_tables ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, schemaJSON string
		if err := rows.Scan(&name, &schemaJSON); err != nil {
			return fmt.Errorf("load tables: %w", err)
		}
		schema, err := unmarshalSchema(schemaJSON)
		if err != nil {
			return fmt.Errorf("load tables: table %s: %w", name, err)
		}
		var count int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", physicalTableName(name))
		if err := s.db.QueryRow(query).Scan(&count); err != nil {
			return fmt.Errorf("load tables: table %s: %w", name, err)
		}
		s.tables[name] = &Table{
			store:    s,
			name:     name,
			schema:   schema,
			working:  make(map[string]any),
			rowCount: count,
		}
	}
	return rows.Err()
}

// RunID returns the run's unique identifier.
func (s *Store) RunID() string { return s.runID }

// Dir returns the run directory.
func (s *Store) Dir() string { return s.dir }

// AddTable declares a new table with the given schema. The schema is
// immutable afterwards. Declaring a name twice fails with
// DUPLICATE_TABLE and leaves the store unchanged.
func (s *Store) AddTable(ctx context.Context, name string, schema Schema) (*Table, error) {
	if s.closed {
		return nil, newClosedError(s.runID)
	}
	if !validIdent(name) {
		return nil, newSchemaError(name, "", "table name must be a letter followed by letters, digits, or underscores")
	}
	if _, ok := s.tables[name]; ok {
		return nil, newDuplicateTableError(name)
	}
	if err := schema.validate(name); err != nil {
		return nil, err
	}

	cols := make([]string, len(schema))
	for i, c := range schema {
		cols[i] = fmt.Sprintf("%s %s", quoteIdent(c.Name), c.Kind.sqlType())
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", physicalTableName(name), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create table %s: %w", name, err)
	}

	schemaJSON, err := marshalSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("create table %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO _runlog_tables (name, schema) VALUES (?, ?)", name, schemaJSON); err != nil {
		return nil, fmt.Errorf("register table %s: %w", name, err)
	}

	t := &Table{
		store:   s,
		name:    name,
		schema:  append(Schema(nil), schema...),
		working: make(map[string]any),
	}
	s.tables[name] = t
	return t, nil
}

// Table returns the table with the given name, or a NOT_FOUND error.
func (s *Store) Table(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, newNotFoundError("table", name)
	}
	return t, nil
}

// Tables returns the declared table names, sorted.
func (s *Store) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Log merges values into the named table's working row and mirrors the
// scalar numeric ones to the side channel, each under its column name with
// a per-column monotonically increasing step.
//
// The side-channel step and the table's row count advance independently: a
// caller that logs to one but not the other will see them diverge. That
// skew is preserved behavior, not reconciled here.
func (s *Store) Log(ctx context.Context, table string, values map[string]any) error {
	if s.closed {
		return newClosedError(s.runID)
	}
	t, err := s.Table(table)
	if err != nil {
		return err
	}
	if err := t.UpdateRow(values); err != nil {
		return err
	}

	for col, v := range values {
		scalar, ok := asScalar(v)
		if !ok {
			continue
		}
		if s.side == nil {
			side, err := openSideChannel(filepath.Join(s.dir, sideChannelDirName))
			if err != nil {
				return fmt.Errorf("open side channel: %w", err)
			}
			s.side = side
		}
		if err := s.side.append(col, scalar); err != nil {
			return fmt.Errorf("side channel: %w", err)
		}
	}
	return nil
}

// asScalar widens numeric values for the side channel. Non-numeric values
// are not mirrored.
func asScalar(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Close releases the backing database and side-channel handles and marks
// the store unusable for further writes. Close is idempotent: a second
// call returns nil and touches nothing.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.side != nil {
		if err := s.side.close(); err != nil {
			errs = append(errs, fmt.Errorf("close side channel: %w", err))
		}
		s.side = nil
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backing store: %w", err))
	}
	return errors.Join(errs...)
}
