package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/elevate/elevate.metabase.tools/internal/cli/appctx"
	"github.com/elevate/elevate.metabase.tools/internal/config"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/prune"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete questions and dashboards by id",
	Long: `Delete the given questions and dashboards. Every id must exist; if any is
unknown nothing is deleted.

Examples:
  mbsnap delete --cards 12,13
  mbsnap delete --cards 12 --dashboards 4,5
`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runDelete),
}

var (
	deleteCards      string
	deleteDashboards string
	deleteJSON       bool
)

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().StringVar(&deleteCards, "cards", "", "Comma separated question ids")
	deleteCmd.Flags().StringVar(&deleteDashboards, "dashboards", "", "Comma separated dashboard ids")
	deleteCmd.Flags().BoolVar(&deleteJSON, "json", false, "Print the result as JSON")
}

func runDelete(app *appctx.App, cmd *cobra.Command, args []string) error {
	cards, err := id.ParseList[id.CardKind](deleteCards)
	if err != nil {
		return fmt.Errorf("invalid --cards: %w", err)
	}
	dashboards, err := id.ParseList[id.DashboardKind](deleteDashboards)
	if err != nil {
		return fmt.Errorf("invalid --dashboards: %w", err)
	}
	if len(cards) == 0 && len(dashboards) == 0 {
		return errors.New("nothing to delete: pass --cards and/or --dashboards")
	}

	return dispatch(app.Context(cmd), app, cmd, config.DeleteCommand{
		Cards:      cards,
		Dashboards: dashboards,
	})
}

func runDeleteCommand(ctx context.Context, app *appctx.App, cmd *cobra.Command, c config.DeleteCommand) error {
	res, err := prune.Delete(ctx, app.Client, prune.Request{
		Cards:      c.Cards,
		Dashboards: c.Dashboards,
	}, app.Logger.Logger)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if deleteJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "%s Deleted %d question(s) and %d dashboard(s)\n", okMark, len(res.Cards), len(res.Dashboards))
	return nil
}
