package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/elevate/elevate.metabase.tools/internal/cli/appctx"
	"github.com/elevate/elevate.metabase.tools/internal/config"
	"github.com/elevate/elevate.metabase.tools/internal/export"
	"github.com/elevate/elevate.metabase.tools/internal/snapshot"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export collections, questions and dashboards to a snapshot file",
	Long: `Export the instance's non-archived collections, questions and dashboards
into a single JSON document. Every id is renumbered from 1 so two exports of
an unchanged instance are byte-identical.

Examples:
  mbsnap export                               # writes metabase-state.json
  mbsnap export --out prod.json --exclude-personal
  mbsnap export --canonical --json            # compact file, JSON summary
`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runExport),
}

var (
	exportOut             string
	exportExcludePersonal bool
	exportCanonical       bool
	exportJSON            bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default from config, metabase-state.json)")
	exportCmd.Flags().BoolVar(&exportExcludePersonal, "exclude-personal", false, "Leave out personal collections and their contents")
	exportCmd.Flags().BoolVar(&exportCanonical, "canonical", false, "Write the compact canonical form instead of indented JSON")
	exportCmd.Flags().BoolVar(&exportJSON, "json", false, "Print the summary as JSON")
}

func runExport(app *appctx.App, cmd *cobra.Command, args []string) error {
	out := exportOut
	if out == "" {
		out = app.Config.SnapshotPath
	}
	return dispatch(app.Context(cmd), app, cmd, config.ExportCommand{
		Out:             out,
		ExcludePersonal: exportExcludePersonal,
		Canonical:       exportCanonical,
	})
}

func runExportCommand(ctx context.Context, app *appctx.App, cmd *cobra.Command, c config.ExportCommand) error {
	res, err := export.Export(ctx, app.Client, export.Options{
		ExcludePersonalCollections: c.ExcludePersonal,
		PersonalMarker:             app.Config.PersonalCollectionMarker,
		Logger:                     app.Logger.Logger,
	})
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	saved, err := snapshot.Save(c.Out, res.State, snapshot.SaveOptions{Canonical: c.Canonical})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if exportJSON {
		return writeJSON(w, saved)
	}
	fmt.Fprintf(w, "%s Exported %d collections, %d questions, %d dashboards (%d placements) to %s\n",
		okMark, saved.Collections, saved.Cards, saved.Dashboards, saved.Placements, saved.OutputPath)
	fmt.Fprintf(w, "  %s\n", dim(saved.SnapshotRev))
	if len(res.NonNativeCards) > 0 {
		fmt.Fprintf(w, "%s %d question(s) are not native SQL and will be skipped on import: %s\n",
			warnMark, len(res.NonNativeCards), strings.Join(res.NonNativeCards, ", "))
	}
	return nil
}
