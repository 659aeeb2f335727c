package cli

import (
	"fmt"

	"github.com/elevate/elevate.metabase.tools/internal/cli/appctx"
	"github.com/elevate/elevate.metabase.tools/internal/snapshot"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <A> <B>",
	Short: "Compare two snapshot files",
	Long: `Compare two snapshot files and print a unified diff of their indented
forms. Formatting differences between the files are ignored.

Examples:
  mbsnap diff yesterday.json today.json
  mbsnap diff --unified 10 a.json b.json
`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.Offline(), runDiff),
}

var diffUnified int

func init() {
	rootCmd.AddCommand(diffCmd)

	diffCmd.Flags().IntVar(&diffUnified, "unified", 3, "Lines of unified context")
}

func runDiff(app *appctx.App, cmd *cobra.Command, args []string) error {
	a, _, err := snapshot.Load(args[0])
	if err != nil {
		return err
	}
	b, _, err := snapshot.Load(args[1])
	if err != nil {
		return err
	}

	text, err := snapshot.Diff(a, b, args[0], args[1], diffUnified)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if text == "" {
		fmt.Fprintf(w, "%s snapshots are identical\n", okMark)
		return nil
	}
	fmt.Fprint(w, text)
	return nil
}
