package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/elevate/elevate.metabase.tools/internal/cli/appctx"
	"github.com/elevate/elevate.metabase.tools/internal/config"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/importer"
	"github.com/elevate/elevate.metabase.tools/internal/snapshot"
	"github.com/elevate/elevate.metabase.tools/internal/store"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a snapshot file into the instance",
	Long: `Import a snapshot document. Every database referenced by a question must
be mapped to a destination database or explicitly ignored; this is checked
before anything is written.

By default the destination's dashboards and questions are deleted and
recreated from the snapshot. With --merge, questions and dashboards are
matched by name instead and everything else is left alone.

Examples:
  mbsnap import --from prod.json --db-map 2=7
  mbsnap import --from prod.json --db-map 2=7 --db-map 3=8 --ignore-db 4
  mbsnap import --from prod.json --merge --db-map 2=7
`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runImport),
}

var (
	importFrom     string
	importMerge    bool
	importDBMap    []string
	importIgnoreDB string
	importJSON     bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importFrom, "from", "f", "", "Snapshot file to import (default from config, metabase-state.json)")
	importCmd.Flags().BoolVar(&importMerge, "merge", false, "Upsert by name instead of replacing everything")
	importCmd.Flags().StringArrayVar(&importDBMap, "db-map", nil, "Map a source database to a destination database (SRC=DST, repeatable)")
	importCmd.Flags().StringVar(&importIgnoreDB, "ignore-db", "", "Comma separated source databases whose questions are skipped")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "Print the summary as JSON")
}

func runImport(app *appctx.App, cmd *cobra.Command, args []string) error {
	from := importFrom
	if from == "" {
		from = app.Config.SnapshotPath
	}

	mapping := maps.Clone(app.Config.DatabaseMapping)
	if mapping == nil {
		mapping = make(map[id.DatabaseID]id.DatabaseID)
	}
	flagMapping, err := config.ParseDatabaseMapping(importDBMap)
	if err != nil {
		return err
	}
	maps.Copy(mapping, flagMapping)

	ignored := slices.Clone(app.Config.IgnoredDatabases)
	flagIgnored, err := id.ParseList[id.DatabaseKind](importIgnoreDB)
	if err != nil {
		return fmt.Errorf("invalid --ignore-db: %w", err)
	}
	for _, db := range flagIgnored {
		if !slices.Contains(ignored, db) {
			ignored = append(ignored, db)
		}
	}

	return dispatch(app.Context(cmd), app, cmd, config.ImportCommand{
		From:             from,
		Merge:            importMerge,
		DatabaseMapping:  mapping,
		IgnoredDatabases: ignored,
	})
}

func runImportCommand(ctx context.Context, app *appctx.App, cmd *cobra.Command, c config.ImportCommand) error {
	state, _, err := snapshot.Load(c.From)
	if err != nil {
		return err
	}
	if err := state.CheckReferences(); err != nil {
		return fmt.Errorf("snapshot %s is inconsistent: %w", c.From, err)
	}
	canonical, err := snapshot.CanonicalJSON(state)
	if err != nil {
		return err
	}

	mode := importer.ModeReplace
	if c.Merge {
		mode = importer.ModeMerge
	}

	journal, err := app.Store.Runs.Begin(ctx, store.BeginParams{
		Instance:   app.Config.URL,
		Mode:       mode,
		SourcePath: c.From,
		SourceRev:  snapshot.ComputeSnapshotRev(canonical),
	})
	if err != nil {
		return err
	}
	log := app.Logger.With("run", journal.UUID())

	opts := importer.Options{
		DatabaseMapping:  c.DatabaseMapping,
		IgnoredDatabases: c.IgnoredDatabases,
		Journal:          journal,
		Logger:           log,
	}

	var res *importer.Result
	if c.Merge {
		res, err = importer.Merge(ctx, app.Client, state, opts)
	} else {
		res, err = importer.Replace(ctx, app.Client, state, opts)
	}
	// The journal outlives a cancelled command context.
	if ferr := journal.Finish(context.WithoutCancel(ctx), err); ferr != nil {
		log.Warn("failed to finish import journal", "error", ferr)
	}
	if err != nil {
		return fmt.Errorf("import failed (run %s): %w", journal.UUID(), err)
	}

	w := cmd.OutOrStdout()
	if importJSON {
		return writeJSON(w, struct {
			Run string `json:"run"`
			*importer.Result
		}{journal.UUID(), res})
	}

	fmt.Fprintf(w, "%s Imported %s (%s mode)\n", okMark, c.From, res.Mode)
	fmt.Fprintf(w, "  collections: %d created, %d reused\n", res.CollectionsCreated, res.CollectionsReused)
	if res.Mode == importer.ModeReplace {
		fmt.Fprintf(w, "  removed:     %d questions, %d dashboards\n", res.CardsDeleted, res.DashboardsDeleted)
	}
	fmt.Fprintf(w, "  questions:   %d created, %d updated, %d skipped\n", res.CardsCreated, res.CardsUpdated, res.CardsSkipped)
	fmt.Fprintf(w, "  dashboards:  %d created, %d replaced\n", res.DashboardsCreated, res.DashboardsReplaced)
	if res.PlacementsDropped > 0 {
		fmt.Fprintf(w, "%s %d dashboard placement(s) dropped because their question was skipped\n", warnMark, res.PlacementsDropped)
	}
	fmt.Fprintf(w, "  %s\n", dim("journal run "+journal.UUID()))
	return nil
}
