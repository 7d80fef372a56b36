package store

import (
	"encoding/json"
	"fmt"
)

// Kind declares how a column's values are typed and persisted.
type Kind int

const (
	// KindFloat stores float64 values in a REAL column.
	KindFloat Kind = iota

	// KindInt stores int64 values in an INTEGER column.
	KindInt

	// KindString stores string values in a TEXT column.
	KindString

	// KindBool stores bool values in an INTEGER column (0/1).
	KindBool

	// KindObject stores arbitrary values inline: the codec output is
	// base64-encoded into a TEXT column.
	KindObject

	// KindBlob stores arbitrary values as separate files under save/,
	// with the TEXT column holding the file name.
	KindBlob

	// KindState is like KindBlob but serialized via a caller-registered
	// state codec, for values with their own serialization machinery
	// (model checkpoints and the like).
	KindState
)

var kindNames = map[Kind]string{
	KindFloat:  "float",
	KindInt:    "int",
	KindString: "string",
	KindBool:   "bool",
	KindObject: "object",
	KindBlob:   "blob",
	KindState:  "state",
}

// String returns the persisted name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// parseKind is the inverse of String. Used when reloading persisted schemas.
func parseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown column kind %q", s)
}

// primitive reports whether values of this kind are stored directly,
// without a codec.
func (k Kind) primitive() bool {
	switch k {
	case KindFloat, KindInt, KindString, KindBool:
		return true
	}
	return false
}

// sideFile reports whether values of this kind are persisted as separate
// files under save/ rather than inline.
func (k Kind) sideFile() bool {
	return k == KindBlob || k == KindState
}

// sqlType returns the SQLite column type for the kind.
func (k Kind) sqlType() string {
	switch k {
	case KindFloat:
		return "REAL"
	case KindInt, KindBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// Column pairs a column name with its declared kind.
type Column struct {
	Name string
	Kind Kind
}

// Schema is an ordered list of column declarations. Order is significant:
// persisted rows and views present columns in declaration order. A schema
// is immutable once its table is created.
type Schema []Column

// Columns returns the column names in declaration order.
func (s Schema) Columns() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// kindOf returns the declared kind for a column name.
func (s Schema) kindOf(name string) (Kind, bool) {
	for _, c := range s {
		if c.Name == name {
			return c.Kind, true
		}
	}
	return 0, false
}

// validate checks that the schema is non-empty, has no duplicate columns,
// and that every column name is a usable identifier.
func (s Schema) validate(table string) error {
	if len(s) == 0 {
		return newSchemaError(table, "", "schema has no columns")
	}
	seen := make(map[string]bool, len(s))
	for _, c := range s {
		if !validIdent(c.Name) {
			return newSchemaError(table, c.Name, "column name must be a letter followed by letters, digits, or underscores")
		}
		if seen[c.Name] {
			return newSchemaError(table, c.Name, "duplicate column")
		}
		if _, ok := kindNames[c.Kind]; !ok {
			return newSchemaError(table, c.Name, "unknown column kind")
		}
		seen[c.Name] = true
	}
	return nil
}

// validIdent reports whether name is safe to interpolate into DDL.
// Table and column names share this rule.
func validIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// persistedColumn is the JSON form of a Column in the meta table.
type persistedColumn struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// marshalSchema encodes a schema for the meta table, preserving order.
func marshalSchema(s Schema) (string, error) {
	cols := make([]persistedColumn, len(s))
	for i, c := range s {
		cols[i] = persistedColumn{Name: c.Name, Kind: c.Kind.String()}
	}
	data, err := json.Marshal(cols)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return string(data), nil
}

// unmarshalSchema decodes a schema from its meta table form.
func unmarshalSchema(data string) (Schema, error) {
	var cols []persistedColumn
	if err := json.Unmarshal([]byte(data), &cols); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	schema := make(Schema, len(cols))
	for i, c := range cols {
		kind, err := parseKind(c.Kind)
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema: %w", err)
		}
		schema[i] = Column{Name: c.Name, Kind: kind}
	}
	return schema, nil
}
