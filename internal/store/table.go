package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Table is one schema-typed, append-only record store within a run.
//
// Writes go through the working row: UpdateRow merges partial values into
// it, and FlushRow is the single commit path that turns the working row
// into a persisted record. Persisted rows are immutable and ordered by
// insertion.
type Table struct {
	store    *Store
	name     string
	schema   Schema
	working  map[string]any
	rowCount int64 // persisted rows; names the next row's side files
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Schema returns the declared schema. The returned slice must not be
// modified.
func (t *Table) Schema() Schema { return t.schema }

// WorkingRow returns a copy of the current working row.
func (t *Table) WorkingRow() map[string]any {
	out := make(map[string]any, len(t.working))
	for k, v := range t.working {
		out[k] = v
	}
	return out
}

// UpdateRow merges the given column values into the working row. A column
// already set in the working row is overwritten (last write wins). Nothing
// is persisted. Columns outside the schema fail with a SCHEMA error.
func (t *Table) UpdateRow(values map[string]any) error {
	if t.store.closed {
		return newClosedError(t.store.runID)
	}
	for col := range values {
		if _, ok := t.schema.kindOf(col); !ok {
			return newSchemaError(t.name, col, "column not declared in schema")
		}
	}
	for col, v := range values {
		t.working[col] = v
	}
	return nil
}

// AppendRow is UpdateRow followed immediately by FlushRow, for single-shot
// rows.
func (t *Table) AppendRow(ctx context.Context, values map[string]any) error {
	if err := t.UpdateRow(values); err != nil {
		return err
	}
	return t.FlushRow(ctx)
}

// FlushRow commits the working row as one persisted record and clears the
// buffer. Schema columns absent from the working row are filled with nulls.
// Non-primitive cells are serialized through the bound codec: KindObject
// inline, KindBlob and KindState as side files under save/ named by table,
// column, and row index. Flushing an empty working row appends an all-null
// row; that is a valid state transition, not an error.
func (t *Table) FlushRow(ctx context.Context) error {
	if t.store.closed {
		return newClosedError(t.store.runID)
	}

	cells := make([]any, len(t.schema))
	for i, col := range t.schema {
		v, ok := t.working[col.Name]
		if !ok || v == nil {
			cells[i] = nil
			continue
		}
		cell, err := t.encodeCell(col, v)
		if err != nil {
			return fmt.Errorf("flush row: %w", err)
		}
		cells[i] = cell
	}

	cols := make([]string, len(t.schema))
	marks := make([]string, len(t.schema))
	for i, col := range t.schema {
		cols[i] = quoteIdent(col.Name)
		marks[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		physicalTableName(t.name), strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := t.store.db.ExecContext(ctx, query, cells...); err != nil {
		return fmt.Errorf("flush row: %w", err)
	}

	t.rowCount++
	t.working = make(map[string]any)
	return nil
}

// encodeCell converts one working-row value into its persisted form.
func (t *Table) encodeCell(col Column, v any) (any, error) {
	if col.Kind.primitive() {
		return v, nil
	}
	codec := t.store.codecs[col.Kind]
	if codec == nil {
		return nil, fmt.Errorf("no codec bound for kind %s (column %s)", col.Kind, col.Name)
	}
	if col.Kind == KindObject {
		cell, err := encodeInline(codec, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return cell, nil
	}
	// Side file. Named by position so reads can locate it from the row
	// index alone.
	data, err := codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", col.Name, err)
	}
	name := sideFileName(t.name, col.Name, t.rowCount)
	if err := os.WriteFile(filepath.Join(t.store.dir, saveDirName, name), data, 0o644); err != nil {
		return nil, fmt.Errorf("column %s: write side file: %w", col.Name, err)
	}
	return name, nil
}

// Rows returns the full persisted sequence in insertion order. KindObject
// cells are decoded to values; KindBlob and KindState cells are returned as
// *BlobRef handles.
func (t *Table) Rows(ctx context.Context) (*View, error) {
	return readTable(ctx, t.store.db, t.store.dir, t.name, t.schema, t.store.codecs)
}

// Len returns the number of persisted rows. The working row is not counted.
func (t *Table) Len() int64 { return t.rowCount }

// sideFileName names the blob file for a cell, deterministically by
// position.
func sideFileName(table, column string, row int64) string {
	return fmt.Sprintf("%s_%s_%d", table, column, row)
}

// physicalTableName maps a logical table name to its SQL table. The prefix
// keeps user tables clear of the meta table.
func physicalTableName(name string) string {
	return quoteIdent("t_" + name)
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
