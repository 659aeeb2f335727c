package cli

import (
	"context"
	"fmt"

	"github.com/elevate/elevate.metabase.tools/internal/cardcheck"
	"github.com/elevate/elevate.metabase.tools/internal/cli/appctx"
	"github.com/elevate/elevate.metabase.tools/internal/config"
	"github.com/spf13/cobra"
)

var testQuestionsCmd = &cobra.Command{
	Use:     "test-questions",
	Aliases: []string{"check"},
	Short:   "Run every question and report the ones that fail",
	Long: `Run the query of every question on the instance, one at a time, and report
which ones fail. Nothing is modified. The command exits non-zero when any
question fails, so it can gate a deployment after an import.
`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runTestQuestions),
}

var (
	testQuestionsArchived bool
	testQuestionsJSON     bool
)

func init() {
	rootCmd.AddCommand(testQuestionsCmd)

	testQuestionsCmd.Flags().BoolVar(&testQuestionsArchived, "include-archived", false, "Also run archived questions")
	testQuestionsCmd.Flags().BoolVar(&testQuestionsJSON, "json", false, "Print the report as JSON")
}

func runTestQuestions(app *appctx.App, cmd *cobra.Command, args []string) error {
	return dispatch(app.Context(cmd), app, cmd, config.TestQuestionsCommand{
		IncludeArchived: testQuestionsArchived,
	})
}

func runTestQuestionsCommand(ctx context.Context, app *appctx.App, cmd *cobra.Command, c config.TestQuestionsCommand) error {
	report, err := cardcheck.Run(ctx, app.Client, cardcheck.Options{
		IncludeArchived: c.IncludeArchived,
		Progress:        cmd.ErrOrStderr(),
		Logger:          app.Logger.Logger,
	})
	if err != nil {
		return fmt.Errorf("test-questions aborted: %w", err)
	}

	w := cmd.OutOrStdout()
	if testQuestionsJSON {
		if err := writeJSON(w, report); err != nil {
			return err
		}
	} else {
		for _, r := range report.Results {
			switch r.Outcome {
			case cardcheck.Failed:
				fmt.Fprintf(w, "%s %d %s: %s\n", failMark, r.CardID, r.Name, r.Error)
			case cardcheck.Crashed:
				fmt.Fprintf(w, "%s %d %s crashed: %s\n", failMark, r.CardID, r.Name, r.Error)
			}
		}
		mark := okMark
		if !report.OK() {
			mark = failMark
		}
		fmt.Fprintf(w, "%s %d passed, %d failed, %d crashed\n", mark, report.Passed, report.Failed, report.Crashed)
	}

	if !report.OK() {
		return fmt.Errorf("%d of %d questions failed", report.Failed+report.Crashed, len(report.Results))
	}
	return nil
}
