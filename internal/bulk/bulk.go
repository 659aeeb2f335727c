// Package bulk runs an operation over a list of items strictly one at a time.
//
// Metabase rate limits its API, so items are never processed in parallel:
// each call is awaited before the next one is issued and results keep the
// input order.
package bulk

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Traverse applies fn to every item in order and collects the results in
// input order. The first error stops the traversal.
func Traverse[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	out := make([]R, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := fn(ctx, item)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ForEach applies fn to every item in order, stopping at the first error.
func ForEach[T any](ctx context.Context, items []T, fn func(context.Context, T) error) error {
	_, err := Traverse(ctx, items, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, item)
	})
	return err
}

// Operation configures Run.
type Operation struct {
	ShowProgress bool
	// Progress receives the progress line; defaults to stderr.
	Progress io.Writer
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Errors     []ItemError
}

// ItemError represents an error for a specific item
type ItemError struct {
	Item  string
	Error error
}

// Err returns the first item error, or nil.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	e := r.Errors[0]
	return fmt.Errorf("%s: %w", e.Item, e.Error)
}

// Run applies fn to every item in order and tallies the outcome. label names
// an item in error reports.
func Run[T any](ctx context.Context, op Operation, items []T, label func(T) string, fn func(context.Context, T) error) *Result {
	result := &Result{TotalItems: len(items)}

	w := op.Progress
	if w == nil {
		w = os.Stderr
	}
	showProgress := op.ShowProgress && isTerminal(w)

	for i, item := range items {
		if showProgress {
			fmt.Fprintf(w, "\r[%s] %d/%d", progressBar(i*100/len(items), 20), i+1, len(items))
		}

		err := ctx.Err()
		if err == nil {
			err = fn(ctx, item)
		}
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Item: label(item), Error: err})
			break
		}
		result.Succeeded++
	}

	if showProgress {
		fmt.Fprintf(w, "\r\033[K")
	}
	return result
}

func progressBar(percent, width int) string {
	filled := min(percent*width/100, width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
