package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runlog/runlog/internal/store"
)

func makeMetadataRun(t *testing.T, root, runID string, lr float64) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(root, runID)
	require.NoError(t, err)
	defer s.Close()

	tbl, err := s.AddTable(ctx, "metadata", store.Schema{{Name: "lr", Kind: store.KindFloat}})
	require.NoError(t, err)
	require.NoError(t, tbl.AppendRow(ctx, map[string]any{"lr": lr}))
}

func TestDumpCommand_TextGolden(t *testing.T) {
	root := t.TempDir()
	makeMetadataRun(t, root, "run-a", 0.1)
	makeMetadataRun(t, root, "run-b", 0.5)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"dump", "--logdir", root, "--table", "metadata"})

	require.NoError(t, cmd.Execute())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "dump_metadata", out.Bytes())
}

func TestDumpCommand_JSON(t *testing.T) {
	root := t.TempDir()
	makeMetadataRun(t, root, "run-a", 0.1)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"dump", "--logdir", root, "--table", "metadata", "--format", "json"})

	require.NoError(t, cmd.Execute())

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	records, ok := resp.Data.([]any)
	require.True(t, ok, "data has type %T", resp.Data)
	require.Len(t, records, 1)
	record := records[0].(map[string]any)
	assert.Equal(t, 0.1, record["lr"])
	assert.Equal(t, "run-a", record[store.RunIDColumn])
}

func TestDumpCommand_SingleRun(t *testing.T) {
	root := t.TempDir()
	makeMetadataRun(t, root, "run-a", 0.1)
	makeMetadataRun(t, root, "run-b", 0.5)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"dump", "--logdir", root, "--table", "metadata", "--run", "run-b"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "run-b")
	assert.NotContains(t, out.String(), "run-a")
}

func TestDumpCommand_NoRows(t *testing.T) {
	root := t.TempDir()
	makeMetadataRun(t, root, "run-a", 0.1)

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"dump", "--logdir", root, "--table", "absent"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
