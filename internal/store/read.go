package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
)

// View is a read-only tabular result: ordered columns and one record per
// persisted row. Views never mutate the store they were read from.
type View struct {
	columns []string
	records [][]any
}

// Columns returns the column names in order.
func (v *View) Columns() []string { return v.columns }

// Len returns the number of records.
func (v *View) Len() int { return len(v.records) }

// Record returns record i. The returned slice must not be modified.
func (v *View) Record(i int) []any { return v.records[i] }

// Records returns all records in order.
func (v *View) Records() [][]any { return v.records }

// Value returns the cell at record i for the named column. The second
// return is false if the view has no such column.
func (v *View) Value(i int, column string) (any, bool) {
	for j, c := range v.columns {
		if c == column {
			return v.records[i][j], true
		}
	}
	return nil, false
}

// RecordMap returns record i as a column→value map.
func (v *View) RecordMap(i int) map[string]any {
	m := make(map[string]any, len(v.columns))
	for j, c := range v.columns {
		m[c] = v.records[i][j]
	}
	return m
}

// readTable loads every persisted row of one table, in insertion order,
// decoding cells per the schema's kinds.
func readTable(ctx context.Context, db *sql.DB, dir, name string, schema Schema, codecs map[Kind]Codec) (*View, error) {
	cols := make([]string, len(schema))
	for i, c := range schema {
		cols[i] = quoteIdent(c.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid",
		strings.Join(cols, ", "), physicalTableName(name))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", name, err)
	}
	defer rows.Close()

	var records [][]any
	for rows.Next() {
		raw := make([]any, len(schema))
		ptrs := make([]any, len(schema))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("read table %s: %w", name, err)
		}
		record := make([]any, len(schema))
		for i, col := range schema {
			cell, err := decodeCell(col, raw[i], dir, codecs)
			if err != nil {
				return nil, fmt.Errorf("read table %s: %w", name, err)
			}
			record[i] = cell
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read table %s: %w", name, err)
	}
	return &View{columns: schema.Columns(), records: records}, nil
}

// decodeCell converts one raw SQL value into its presented form.
func decodeCell(col Column, raw any, dir string, codecs map[Kind]Codec) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch col.Kind {
	case KindBool:
		n, ok := raw.(int64)
		if !ok {
			return nil, fmt.Errorf("column %s: bool cell has type %T", col.Name, raw)
		}
		return n != 0, nil
	case KindObject:
		cell, err := textCell(col, raw)
		if err != nil {
			return nil, err
		}
		v, err := decodeInline(codecs[KindObject], cell)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return v, nil
	case KindBlob, KindState:
		cell, err := textCell(col, raw)
		if err != nil {
			return nil, err
		}
		return &BlobRef{
			Path:  filepath.Join(dir, saveDirName, cell),
			codec: codecs[col.Kind],
		}, nil
	default:
		return raw, nil
	}
}

// textCell extracts a TEXT cell, tolerating drivers that hand back []byte.
func textCell(col Column, raw any) (string, error) {
	switch s := raw.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", fmt.Errorf("column %s: cell has type %T, want TEXT", col.Name, raw)
}
