package config

import "github.com/elevate/elevate.metabase.tools/internal/id"

// Command is one of the operations mbsnap runs against an instance:
// ExportCommand, ImportCommand, TestQuestionsCommand or DeleteCommand.
type Command interface {
	command() string
}

// ExportCommand writes the instance state to Out.
type ExportCommand struct {
	Out             string
	ExcludePersonal bool
	Canonical       bool
}

// ImportCommand applies the snapshot at From.
type ImportCommand struct {
	From             string
	Merge            bool
	DatabaseMapping  map[id.DatabaseID]id.DatabaseID
	IgnoredDatabases []id.DatabaseID
}

// TestQuestionsCommand runs every card's query.
type TestQuestionsCommand struct {
	IncludeArchived bool
}

// DeleteCommand deletes the named cards and dashboards.
type DeleteCommand struct {
	Cards      []id.CardID
	Dashboards []id.DashboardID
}

func (ExportCommand) command() string        { return "export" }
func (ImportCommand) command() string        { return "import" }
func (TestQuestionsCommand) command() string { return "test-questions" }
func (DeleteCommand) command() string        { return "delete" }

// Name returns the CLI name of cmd.
func Name(cmd Command) string {
	return cmd.command()
}
