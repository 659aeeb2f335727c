package cli

import (
	"context"
	"fmt"

	"github.com/elevate/elevate.metabase.tools/internal/cli/appctx"
	"github.com/elevate/elevate.metabase.tools/internal/config"
	"github.com/spf13/cobra"
)

// dispatch runs one operation against the configured instance.
func dispatch(ctx context.Context, app *appctx.App, cmd *cobra.Command, c config.Command) error {
	app.Logger.Debug("running command", "command", config.Name(c), "url", app.Config.URL)

	var err error
	switch c := c.(type) {
	case config.ExportCommand:
		err = runExportCommand(ctx, app, cmd, c)
	case config.ImportCommand:
		err = runImportCommand(ctx, app, cmd, c)
	case config.TestQuestionsCommand:
		err = runTestQuestionsCommand(ctx, app, cmd, c)
	case config.DeleteCommand:
		err = runDeleteCommand(ctx, app, cmd, c)
	default:
		return fmt.Errorf("unsupported command %T", c)
	}
	if err != nil {
		return err
	}

	printWarnings(cmd.ErrOrStderr(), app.Logger.Warnings())
	return nil
}
