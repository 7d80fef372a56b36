package store

import (
	"context"
	"testing"
)

// newTestStore opens a fresh store in a temp directory, closed on cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), "test-run")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustAddTable declares a table or fails the test.
func mustAddTable(t *testing.T, s *Store, name string, schema Schema) *Table {
	t.Helper()
	tbl, err := s.AddTable(context.Background(), name, schema)
	if err != nil {
		t.Fatalf("AddTable(%q) failed: %v", name, err)
	}
	return tbl
}
