package snapshot

import (
	"fmt"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff of the indented forms of two documents. An
// empty string means the documents are identical.
func Diff(a, b *domain.State, fromName, toName string, context int) (string, error) {
	prettyA, err := PrettyJSON(a)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", fromName, err)
	}
	prettyB, err := PrettyJSON(b)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", toName, err)
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(prettyA)),
		B:        difflib.SplitLines(string(prettyB)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  context,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to diff snapshots: %w", err)
	}
	return text, nil
}
