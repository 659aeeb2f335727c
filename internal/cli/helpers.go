package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()("✓")
	failMark = color.New(color.FgRed).SprintFunc()("✗")
	warnMark = color.New(color.FgYellow).SprintFunc()("⚠")
	dim      = color.New(color.Faint).SprintFunc()
)

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printWarnings reports how many warnings the run logged, if any.
func printWarnings(w io.Writer, n int64) {
	if n > 0 {
		fmt.Fprintf(w, "%s %d warning(s) logged, see above\n", warnMark, n)
	}
}
