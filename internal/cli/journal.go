package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/elevate/elevate.metabase.tools/internal/cli/appctx"
	"github.com/elevate/elevate.metabase.tools/internal/render"
	"github.com/elevate/elevate.metabase.tools/internal/store"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal [RUN]",
	Short: "Show past imports and the ids they produced",
	Long: `Without arguments, list recent import runs. With a run id (or a unique
prefix of at least four characters), print the source to destination id
mappings recorded by that run. Useful after a replace import failed halfway.

Examples:
  mbsnap journal
  mbsnap journal 3f2a9c1e
  mbsnap journal 3f2a9c1e --format yaml
`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.Options{NeedsDB: true}, runJournal),
}

var (
	journalLimit  int
	journalFormat string
	journalJSON   bool
)

func init() {
	rootCmd.AddCommand(journalCmd)

	journalCmd.Flags().IntVar(&journalLimit, "limit", 20, "Number of runs to list (0 = all)")
	journalCmd.Flags().StringVar(&journalFormat, "format", "table", "Output format: table, json, yaml, tsv")
	journalCmd.Flags().BoolVar(&journalJSON, "json", false, "Shorthand for --format json")
}

// runDetail is a run together with its recorded mappings.
type runDetail struct {
	store.ImportRun `yaml:",inline"`
	Entries         []store.Mapping `json:"entries" yaml:"entries"`
}

func runJournal(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := app.Context(cmd)

	format, err := render.ParseFormat(journalFormat)
	if err != nil {
		return err
	}
	if journalJSON {
		format = render.FormatJSON
	}
	r := render.New(cmd.OutOrStdout(), format)

	if len(args) == 0 {
		runs, err := app.Store.Runs.List(ctx, journalLimit)
		if err != nil {
			return err
		}
		if runs == nil {
			runs = []store.ImportRun{}
		}
		if len(runs) == 0 && !r.Structured() {
			fmt.Fprintln(cmd.OutOrStdout(), "No imports recorded.")
			return nil
		}

		rows := make([][]string, len(runs))
		for i, run := range runs {
			rows[i] = []string{
				run.UUID[:8],
				humanize.Time(run.StartedAt),
				run.Mode,
				run.Status,
				strconv.Itoa(run.Mappings),
				run.SourcePath,
			}
		}
		return r.Table(render.Table{
			Headers: []string{"RUN", "STARTED", "MODE", "STATUS", "MAPPINGS", "SOURCE"},
			Rows:    rows,
			Data:    runs,
		})
	}

	run, err := app.Store.Runs.Get(ctx, args[0])
	if errors.Is(err, store.ErrRunNotFound) {
		return fmt.Errorf("no import run matches %q", args[0])
	}
	if err != nil {
		return err
	}
	mappings, err := app.Store.Runs.Mappings(ctx, run.UUID)
	if err != nil {
		return err
	}
	if mappings == nil {
		mappings = []store.Mapping{}
	}

	if r.Structured() {
		return r.Value(runDetail{ImportRun: *run, Entries: mappings})
	}

	if format == render.FormatTable {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "run %s  %s  %s  %s\n", run.UUID, run.Mode, statusLabel(run.Status), run.Instance)
		if run.SourceRev != "" {
			fmt.Fprintf(w, "  %s %s\n", run.SourcePath, dim(run.SourceRev))
		}
		if run.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", run.Error)
		}
	}
	rows := make([][]string, len(mappings))
	for i, m := range mappings {
		rows[i] = []string{m.Kind, strconv.Itoa(m.SourceID), strconv.Itoa(m.TargetID)}
	}
	return r.Table(render.Table{
		Headers: []string{"KIND", "SOURCE", "TARGET"},
		Rows:    rows,
		Data:    mappings,
	})
}

func statusLabel(status string) string {
	switch status {
	case store.RunSucceeded:
		return okMark + " " + status
	case store.RunFailed:
		return failMark + " " + status
	default:
		return warnMark + " " + status
	}
}
