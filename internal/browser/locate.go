package browser

import (
	"context"
	"fmt"
	"strings"
)

// Strategy is one way of finding a target element whose markup is not
// contractually stable.
type Strategy struct {
	Name     string
	Selector string
}

// LocateResult reports which strategy matched, or the exhaustion error.
type LocateResult struct {
	Strategy Strategy
	Err      error
}

// First tries each strategy in order and returns the first whose selector
// matches a visible element. Exhaustion returns an error naming every
// strategy tried.
func First(ctx context.Context, page Page, strategies []Strategy) LocateResult {
	tried := make([]string, 0, len(strategies))
	for _, s := range strategies {
		if page.Exists(ctx, s.Selector) {
			return LocateResult{Strategy: s}
		}
		tried = append(tried, s.Name)
	}
	return LocateResult{Err: fmt.Errorf("no element found, tried: %s", strings.Join(tried, ", "))}
}

// ClickFirst locates via First and clicks the winning selector. On exhaustion
// it captures a diagnostic screenshot to shotPath before returning the error.
func ClickFirst(ctx context.Context, page Page, strategies []Strategy, shotPath string) error {
	res := First(ctx, page, strategies)
	if res.Err != nil {
		if shotPath != "" {
			_ = page.Screenshot(ctx, shotPath)
		}
		return res.Err
	}
	return page.Click(ctx, res.Strategy.Selector)
}

// FillFirst locates via First and fills the winning selector, with the same
// screenshot-on-exhaustion contract as ClickFirst.
func FillFirst(ctx context.Context, page Page, strategies []Strategy, text, shotPath string) error {
	res := First(ctx, page, strategies)
	if res.Err != nil {
		if shotPath != "" {
			_ = page.Screenshot(ctx, shotPath)
		}
		return res.Err
	}
	return page.Fill(ctx, res.Strategy.Selector, text)
}
