package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestTable_UpdateThenFlush(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := mustAddTable(t, s, "result", Schema{
		{"final_x", KindFloat},
		{"final_opt", KindFloat},
	})

	if err := tbl.UpdateRow(map[string]any{"final_x": 3.0}); err != nil {
		t.Fatalf("UpdateRow() failed: %v", err)
	}
	if err := tbl.UpdateRow(map[string]any{"final_opt": 3.941}); err != nil {
		t.Fatalf("UpdateRow() failed: %v", err)
	}
	if err := tbl.FlushRow(ctx); err != nil {
		t.Fatalf("FlushRow() failed: %v", err)
	}

	view, err := tbl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	if view.Len() != 1 {
		t.Fatalf("Rows() has %d records, want 1", view.Len())
	}
	want := []any{3.0, 3.941}
	if !reflect.DeepEqual(view.Record(0), want) {
		t.Errorf("Record(0) = %v, want %v", view.Record(0), want)
	}
	if len(tbl.WorkingRow()) != 0 {
		t.Errorf("working row not cleared after flush: %v", tbl.WorkingRow())
	}
}

func TestTable_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := mustAddTable(t, s, "result", Schema{{"x", KindFloat}})

	if err := tbl.UpdateRow(map[string]any{"x": 1.0}); err != nil {
		t.Fatalf("UpdateRow() failed: %v", err)
	}
	if err := tbl.UpdateRow(map[string]any{"x": 2.0}); err != nil {
		t.Fatalf("UpdateRow() failed: %v", err)
	}
	if err := tbl.FlushRow(ctx); err != nil {
		t.Fatalf("FlushRow() failed: %v", err)
	}

	view, err := tbl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	if got, _ := view.Value(0, "x"); got != 2.0 {
		t.Errorf("x = %v, want 2.0 (last write wins)", got)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (UpdateRow must not flush)", tbl.Len())
	}
}

func TestTable_UpdateUndeclaredColumn(t *testing.T) {
	s := newTestStore(t)
	tbl := mustAddTable(t, s, "result", Schema{{"x", KindFloat}})

	err := tbl.UpdateRow(map[string]any{"y": 1.0})
	if err == nil {
		t.Fatal("expected error for undeclared column, got nil")
	}
	if !IsSchemaError(err) {
		t.Errorf("error = %v, want SCHEMA", err)
	}
	// The failed update must not leave partial state behind.
	if len(tbl.WorkingRow()) != 0 {
		t.Errorf("working row mutated by failed update: %v", tbl.WorkingRow())
	}
}

func TestTable_AppendEqualsUpdatePlusFlush(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	schema := Schema{{"a", KindFloat}, {"b", KindString}}
	appended := mustAddTable(t, s, "appended", schema)
	stepwise := mustAddTable(t, s, "stepwise", schema)

	row := map[string]any{"a": 1.5, "b": "hello"}
	if err := appended.AppendRow(ctx, row); err != nil {
		t.Fatalf("AppendRow() failed: %v", err)
	}
	if err := stepwise.UpdateRow(row); err != nil {
		t.Fatalf("UpdateRow() failed: %v", err)
	}
	if err := stepwise.FlushRow(ctx); err != nil {
		t.Fatalf("FlushRow() failed: %v", err)
	}

	v1, err := appended.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	v2, err := stepwise.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	if !reflect.DeepEqual(v1.Records(), v2.Records()) {
		t.Errorf("AppendRow result %v differs from update+flush %v", v1.Records(), v2.Records())
	}
}

func TestTable_FlushFillsNulls(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := mustAddTable(t, s, "result", Schema{
		{"x", KindFloat},
		{"untouched", KindString},
	})

	if err := tbl.AppendRow(ctx, map[string]any{"x": 1.0}); err != nil {
		t.Fatalf("AppendRow() failed: %v", err)
	}
	view, err := tbl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	want := []any{1.0, nil}
	if !reflect.DeepEqual(view.Record(0), want) {
		t.Errorf("Record(0) = %v, want %v", view.Record(0), want)
	}
}

func TestTable_FlushEmptyWorkingRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := mustAddTable(t, s, "result", Schema{{"x", KindFloat}, {"y", KindInt}})

	// A blank row is a valid state transition, not an error.
	if err := tbl.FlushRow(ctx); err != nil {
		t.Fatalf("FlushRow() of empty working row failed: %v", err)
	}
	view, err := tbl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	if view.Len() != 1 {
		t.Fatalf("Rows() has %d records, want 1", view.Len())
	}
	if !reflect.DeepEqual(view.Record(0), []any{nil, nil}) {
		t.Errorf("Record(0) = %v, want all nulls", view.Record(0))
	}
}

func TestTable_PrimitiveKinds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := mustAddTable(t, s, "mixed", Schema{
		{"f", KindFloat},
		{"n", KindInt},
		{"s", KindString},
		{"b", KindBool},
	})

	if err := tbl.AppendRow(ctx, map[string]any{"f": 2.5, "n": int64(7), "s": "run", "b": true}); err != nil {
		t.Fatalf("AppendRow() failed: %v", err)
	}
	if err := tbl.AppendRow(ctx, map[string]any{"b": false}); err != nil {
		t.Fatalf("AppendRow() failed: %v", err)
	}

	view, err := tbl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	if !reflect.DeepEqual(view.Record(0), []any{2.5, int64(7), "run", true}) {
		t.Errorf("Record(0) = %v", view.Record(0))
	}
	if !reflect.DeepEqual(view.Record(1), []any{nil, nil, nil, false}) {
		t.Errorf("Record(1) = %v", view.Record(1))
	}
}

func TestTable_ObjectCellRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := mustAddTable(t, s, "result", Schema{{"config", KindObject}})

	want := map[string]float64{"lr": 0.1, "decay": 0.99}
	if err := tbl.AppendRow(ctx, map[string]any{"config": want}); err != nil {
		t.Fatalf("AppendRow() failed: %v", err)
	}

	view, err := tbl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	got, _ := view.Value(0, "config")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("config = %#v, want %#v", got, want)
	}
}

func TestTable_BlobCellSideFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := mustAddTable(t, s, "result", Schema{{"weights", KindBlob}})

	if err := tbl.AppendRow(ctx, map[string]any{"weights": []float64{1, 2}}); err != nil {
		t.Fatalf("AppendRow() failed: %v", err)
	}
	if err := tbl.AppendRow(ctx, map[string]any{"weights": []float64{3}}); err != nil {
		t.Fatalf("AppendRow() failed: %v", err)
	}

	// Side files are named by table, column, and row index.
	for i := 0; i < 2; i++ {
		path := filepath.Join(s.Dir(), saveDirName, sideFileName("result", "weights", int64(i)))
		if _, err := os.Stat(path); err != nil {
			t.Errorf("side file for row %d missing: %v", i, err)
		}
	}

	view, err := tbl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	ref, ok := view.Record(1)[0].(*BlobRef)
	if !ok {
		t.Fatalf("blob cell has type %T, want *BlobRef", view.Record(1)[0])
	}
	got, err := ref.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !reflect.DeepEqual(got, []float64{3}) {
		t.Errorf("Load() = %v, want [3]", got)
	}
}

func TestTable_BlobSideFileDeletedFailsLoudly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := mustAddTable(t, s, "result", Schema{{"weights", KindBlob}})

	if err := tbl.AppendRow(ctx, map[string]any{"weights": []float64{1}}); err != nil {
		t.Fatalf("AppendRow() failed: %v", err)
	}
	path := filepath.Join(s.Dir(), saveDirName, sideFileName("result", "weights", 0))
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	view, err := tbl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	ref := view.Record(0)[0].(*BlobRef)
	if _, err := ref.Load(); !IsBlobMissing(err) {
		t.Errorf("Load() error = %v, want BLOB_MISSING", err)
	}
}

func TestTable_StateKindNeedsCodec(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tbl := mustAddTable(t, s, "checkpoints", Schema{{"model", KindState}})

	// No state codec bound: flushing a state cell must fail, not persist
	// garbage.
	err := tbl.AppendRow(ctx, map[string]any{"model": "weights"})
	if err == nil {
		t.Fatal("expected error without a state codec, got nil")
	}
}

func TestTable_StateKindWithCodec(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), "run-state", WithStateCodec(GobCodec{}))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	tbl := mustAddTable(t, s, "checkpoints", Schema{{"model", KindState}})
	if err := tbl.AppendRow(ctx, map[string]any{"model": "serialized weights"}); err != nil {
		t.Fatalf("AppendRow() failed: %v", err)
	}

	view, err := tbl.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	ref := view.Record(0)[0].(*BlobRef)
	got, err := ref.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got != "serialized weights" {
		t.Errorf("Load() = %v", got)
	}
}
