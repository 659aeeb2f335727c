package cli

import (
	"fmt"

	"github.com/elevate/elevate.metabase.tools/internal/cli/appctx"
	"github.com/elevate/elevate.metabase.tools/internal/snapshot"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [FILE]",
	Short: "Check that a snapshot file is canonical and consistent",
	Long: `Load a snapshot, re-encode it, and check that the result is stable and that
every reference inside it resolves. No instance is contacted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.Offline(), runVerify),
}

var verifyJSON bool

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Print the result as JSON")
}

func runVerify(app *appctx.App, cmd *cobra.Command, args []string) error {
	path := app.Config.SnapshotPath
	if len(args) == 1 {
		path = args[0]
	}

	res, err := snapshot.Verify(path)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if verifyJSON {
		if err := writeJSON(w, res); err != nil {
			return err
		}
	} else if res.Valid {
		fmt.Fprintf(w, "%s %s: %s\n", okMark, res.InputPath, res.Message)
		fmt.Fprintf(w, "  %d collections, %d questions, %d dashboards (%d placements)\n",
			res.Collections, res.Cards, res.Dashboards, res.Placements)
		fmt.Fprintf(w, "  %s\n", dim(res.SnapshotRev))
	} else {
		fmt.Fprintf(w, "%s %s: %s\n", failMark, res.InputPath, res.Message)
	}

	if !res.Valid {
		return fmt.Errorf("snapshot %s is not valid", path)
	}
	return nil
}
