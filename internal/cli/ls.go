package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runlog/runlog/internal/store"
)

// LsOptions holds flags for the ls command.
type LsOptions struct {
	*RootOptions
	Logdir string
}

// RunListing is the JSON payload for one run.
type RunListing struct {
	RunID  string      `json:"run_id"`
	Tables []TableStat `json:"tables"`
}

// TableStat summarizes one table of a run.
type TableStat struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// NewLsCommand creates the ls command: list the runs under a logdir with
// their tables and row counts.
func NewLsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List runs and their tables",
		Long: `List every run directory under a logdir with its tables and row counts.

Examples:
  runlog ls --logdir ./runs
  runlog ls --logdir ./runs --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Logdir, "logdir", "", "collection root holding run directories (required)")
	_ = cmd.MarkFlagRequired("logdir")

	return cmd
}

func runLs(opts *LsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	col, err := store.OpenCollection(opts.Logdir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to scan logdir", err)
	}

	var listings []RunListing
	for _, runID := range col.Runs() {
		infos, err := col.RunTables(ctx, runID)
		if err != nil {
			// One unreadable run should not hide the rest of the sweep.
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipping run %s: %v\n", runID, err)
			continue
		}
		listing := RunListing{RunID: runID}
		for _, info := range infos {
			listing.Tables = append(listing.Tables, TableStat{Name: info.Name, Rows: info.Rows})
		}
		listings = append(listings, listing)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(listings)
	}

	var b strings.Builder
	for _, listing := range listings {
		fmt.Fprintf(&b, "%s\n", listing.RunID)
		for _, t := range listing.Tables {
			fmt.Fprintf(&b, "  %s (%d rows)\n", t.Name, t.Rows)
		}
	}
	if b.Len() == 0 {
		b.WriteString("no runs found\n")
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), b.String())
	return err
}
