package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/runlog/runlog/internal/store"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Logdir string
	Table  string
	Run    string
}

// NewDumpCommand creates the dump command: print one table, merged across
// every run or restricted to a single one.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print a table across runs",
		Long: `Print every row of one table, merged across the runs under a logdir.
Each row carries a run_id column naming its source run.

Examples:
  runlog dump --logdir ./runs --table result
  runlog dump --logdir ./runs --table metadata --run 1a2b3c --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Logdir, "logdir", "", "collection root holding run directories (required)")
	_ = cmd.MarkFlagRequired("logdir")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table name (required)")
	_ = cmd.MarkFlagRequired("table")
	cmd.Flags().StringVar(&opts.Run, "run", "", "restrict to one run ID")

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	col, err := store.OpenCollection(opts.Logdir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to scan logdir", err)
	}

	view, err := col.TableView(ctx, opts.Table)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read table", err)
	}

	records := make([]map[string]any, 0, view.Len())
	for i := 0; i < view.Len(); i++ {
		if opts.Run != "" {
			if id, _ := view.Value(i, store.RunIDColumn); id != opts.Run {
				continue
			}
		}
		records = append(records, presentRecord(view, i))
	}
	if len(records) == 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("no rows for table %q under %s", opts.Table, opts.Logdir))
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(records)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), renderTable(view.Columns(), records))
	return err
}

// presentRecord converts one view record into printable values. Side-file
// cells are shown as their on-disk path rather than loaded into memory.
func presentRecord(view *store.View, i int) map[string]any {
	m := view.RecordMap(i)
	for k, v := range m {
		if ref, ok := v.(*store.BlobRef); ok {
			m[k] = ref.Path
		}
	}
	return m
}

// renderTable lays records out as an aligned text table.
func renderTable(columns []string, records []map[string]any) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(columns, "\t"))
	for _, rec := range records {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = formatValue(rec[col])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	return b.String()
}
