package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mbsnap",
	Short: "Snapshot and restore Metabase questions and dashboards",
	Long: `mbsnap exports the collections, native SQL questions and dashboards of a
Metabase instance into a single JSON document with renumbered ids, and
imports such a document into another instance, remapping every reference
and database along the way.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("url", "", "Metabase base URL (overrides MBSNAP_URL)")
	flags.String("username", "", "Metabase username (overrides MBSNAP_USERNAME)")
	flags.String("password", "", "Metabase password (overrides MBSNAP_PASSWORD)")
	flags.Duration("timeout", 0, "Per-request timeout (default 100s)")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.String("state", "", "Path to the local state database (overrides MBSNAP_STATE_PATH)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Also write JSON logs to this rotated file")
}
