// Package cardcheck runs every card's query on an instance and reports which
// ones fail. It never changes server state.
package cardcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/elevate/elevate.metabase.tools/internal/bulk"
	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/metabase"
)

// Outcome classifies a card run.
type Outcome string

const (
	Passed  Outcome = "passed"
	Failed  Outcome = "failed"
	Crashed Outcome = "crashed"
)

// CardResult is the outcome of running one card.
type CardResult struct {
	CardID  id.CardID `json:"card_id"`
	Name    string    `json:"name"`
	Outcome Outcome   `json:"outcome"`
	Error   string    `json:"error,omitempty"`
}

// Report summarizes a check run.
type Report struct {
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Crashed int          `json:"crashed"`
	Results []CardResult `json:"results"`
}

// OK reports whether every card passed.
func (r *Report) OK() bool {
	return r.Failed == 0 && r.Crashed == 0
}

// Options configures Run.
type Options struct {
	// IncludeArchived also runs archived cards.
	IncludeArchived bool
	Progress        io.Writer
	Logger          *slog.Logger
}

// Run executes every card sequentially. A query that finishes with a status
// other than "completed" is Failed; a request the server rejects is Crashed.
// Transport and authentication errors abort the run.
func Run(ctx context.Context, api metabase.API, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cards, err := api.GetAllCards(ctx)
	if err != nil {
		return nil, err
	}
	if !opts.IncludeArchived {
		kept := cards[:0]
		for _, c := range cards {
			if !c.Archived {
				kept = append(kept, c)
			}
		}
		cards = kept
	}

	report := &Report{Results: make([]CardResult, 0, len(cards))}

	op := bulk.Operation{ShowProgress: true, Progress: opts.Progress}
	label := func(c domain.Card) string { return fmt.Sprintf("card %d (%s)", c.ID, c.Name) }

	result := bulk.Run(ctx, op, cards, label, func(ctx context.Context, c domain.Card) error {
		res := CardResult{CardID: c.ID, Name: c.Name}

		run, err := api.RunCard(ctx, c.ID)
		var apiErr *metabase.APIError
		switch {
		case err == nil && run.Completed():
			res.Outcome = Passed
			report.Passed++
		case err == nil:
			res.Outcome = Failed
			res.Error = run.Error
			report.Failed++
			logger.Warn("card query failed", "card_id", c.ID, "name", c.Name, "error", run.Error)
		case errors.As(err, &apiErr) && !errors.Is(err, metabase.ErrUnauthorized):
			res.Outcome = Crashed
			res.Error = err.Error()
			report.Crashed++
			logger.Warn("card query crashed", "card_id", c.ID, "name", c.Name, "status", apiErr.StatusCode)
		default:
			return err
		}
		report.Results = append(report.Results, res)
		return nil
	})

	if err := result.Err(); err != nil {
		return report, err
	}
	return report, nil
}
