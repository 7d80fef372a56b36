package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runlog/runlog/internal/store"
)

// ViewOptions holds flags for the view command.
type ViewOptions struct {
	*RootOptions
	Logdir        string
	Port          int
	MetadataTable string
	FilterParams  []string
	FormatStr     string
	PrintOnly     bool
}

// NewViewCommand creates the view command: select runs by their metadata,
// label them from a format string, and hand the result to the external
// visualizer.
func NewViewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ViewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Launch a visualizer over labeled runs",
		Long: `Select runs under a logdir by their metadata table, label each one
from a format string, and launch tensorboard over the selection.

The metadata table must hold exactly one row per run. Placeholders in
--format-str are written as {column} and filled from that row; the label is
always suffixed with ---<run id>. Runs without a side-channel directory or
without a metadata row are skipped.

Examples:
  runlog view --logdir ./runs --format-str "lr{lr}-bs{batch_size}"
  runlog view --logdir ./runs --format-str "lr{lr}" --filter-param "lr=0\.0*1"
  runlog view --logdir ./runs --format-str "{dataset}" --print-only`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Logdir, "logdir", "", "collection root holding run directories (required)")
	_ = cmd.MarkFlagRequired("logdir")
	cmd.Flags().IntVar(&opts.Port, "port", 6006, "port passed on to the visualizer")
	cmd.Flags().StringVar(&opts.MetadataTable, "metadata-table", "metadata", "name of the metadata table")
	cmd.Flags().StringArrayVar(&opts.FilterParams, "filter-param", nil,
		"keep only runs whose metadata column matches (NAME=REGEX or \"NAME REGEX\", repeatable)")
	cmd.Flags().StringVar(&opts.FormatStr, "format-str", "", "run label template with {column} placeholders (required)")
	_ = cmd.MarkFlagRequired("format-str")
	cmd.Flags().BoolVar(&opts.PrintOnly, "print-only", false, "print the visualizer command instead of running it")

	return cmd
}

func runView(opts *ViewOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	filters, err := parseFilters(opts.FilterParams)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --filter-param", err)
	}

	col, err := store.OpenCollection(opts.Logdir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to scan logdir", err)
	}

	meta, err := col.TableView(ctx, opts.MetadataTable)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read metadata table", err)
	}

	targets := selectTargets(col, meta, filters, opts.FormatStr)
	if len(targets) == 0 {
		return NewExitError(ExitFailure, "no matching runs under "+opts.Logdir)
	}

	logdirArg := strings.Join(targets, ",")
	args := []string{"--logdir", logdirArg, "--port", strconv.Itoa(opts.Port)}
	if opts.PrintOnly {
		fmt.Fprintf(cmd.OutOrStdout(), "tensorboard %s\n", strings.Join(args, " "))
		return nil
	}

	slog.Info("launching visualizer", "runs", len(targets), "port", opts.Port)
	vis := exec.Command("tensorboard", args...)
	vis.Stdout = os.Stdout
	vis.Stderr = os.Stderr
	if err := vis.Run(); err != nil {
		return WrapExitError(ExitCommandError, "visualizer failed", err)
	}
	return nil
}

// parseFilters compiles --filter-param values. Each entry is NAME=REGEX,
// or NAME and REGEX separated by whitespace.
func parseFilters(raw []string) (map[string]*regexp.Regexp, error) {
	filters := make(map[string]*regexp.Regexp, len(raw))
	for _, entry := range raw {
		name, pattern, ok := strings.Cut(entry, "=")
		if !ok {
			name, pattern, ok = strings.Cut(entry, " ")
		}
		if !ok || name == "" {
			return nil, fmt.Errorf("want NAME=REGEX, got %q", entry)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
		filters[strings.TrimSpace(name)] = re
	}
	return filters, nil
}

// selectTargets produces the visualizer's name:path entries, in run
// discovery order. A run is included when it has a side channel to show, a
// metadata row, every filtered column matches, and its label formats
// cleanly.
func selectTargets(col *store.Collection, meta *store.View, filters map[string]*regexp.Regexp, formatStr string) []string {
	var targets []string
	for _, runID := range col.Runs() {
		dir := col.RunDir(runID)
		if !store.HasSideChannel(dir) {
			continue
		}

		row, ok := metadataRow(meta, runID)
		if !ok {
			slog.Warn("skipping run without metadata row", "run", runID)
			continue
		}

		matched := true
		for name, re := range filters {
			if !re.MatchString(formatValue(row[name])) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}

		label, err := formatLabel(formatStr, row)
		if err != nil {
			slog.Warn("skipping run", "run", runID, "err", err)
			continue
		}
		targets = append(targets, label+"---"+runID+":"+dir)
	}
	return targets
}

// metadataRow finds the run's row in the merged metadata view. The
// metadata table is expected to hold exactly one row per run; the first
// match wins.
func metadataRow(meta *store.View, runID string) (map[string]any, bool) {
	for i := 0; i < meta.Len(); i++ {
		if id, _ := meta.Value(i, store.RunIDColumn); id == runID {
			return meta.RecordMap(i), true
		}
	}
	return nil, false
}

var placeholderRE = regexp.MustCompile(`\{([^{}]+)\}`)

// formatLabel substitutes {column} placeholders from the metadata row.
// Referencing a column the row does not have is an error, so a typo in the
// template shows up as skipped runs with warnings rather than blank labels.
func formatLabel(formatStr string, row map[string]any) (string, error) {
	var missing string
	label := placeholderRE.ReplaceAllStringFunc(formatStr, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := row[name]
		if !ok {
			missing = name
			return m
		}
		return formatValue(v)
	})
	if missing != "" {
		return "", fmt.Errorf("format-str references unknown column %q", missing)
	}
	return label, nil
}

// formatValue renders one metadata cell for labels and filter matching.
// List values are joined with ".", matching the label convention for
// parameters like layer sizes.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ".")
	default:
		return fmt.Sprint(val)
	}
}
