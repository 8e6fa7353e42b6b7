// Package browser wraps Rod with the narrow page capability the agent core
// depends on, plus the resilience helpers for flaky marketplace UIs.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
)

// Page is the capability surface the agent core sees. The real implementation
// wraps a Rod page; tests substitute a fake.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitStable(ctx context.Context) error
	// Evaluate runs a JS expression or arrow function and returns its value as JSON.
	Evaluate(ctx context.Context, js string) (json.RawMessage, error)
	// Exists reports whether a visible element matches the selector within the
	// locate timeout.
	Exists(ctx context.Context, selector string) bool
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	PressEscape(ctx context.Context) error
	PressEnter(ctx context.Context) error
	Screenshot(ctx context.Context, path string) error
	URL() string
}

// rodPage adapts *rod.Page to the Page interface.
type rodPage struct {
	page          *rod.Page
	navTimeout    time.Duration
	locateTimeout time.Duration
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.navTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	_ = page.WaitLoad()
	return nil
}

func (p *rodPage) WaitStable(ctx context.Context) error {
	return p.page.Context(ctx).Timeout(p.navTimeout).WaitStable(300 * time.Millisecond)
}

func (p *rodPage) Evaluate(ctx context.Context, js string) (json.RawMessage, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return raw, nil
}

func (p *rodPage) Exists(ctx context.Context, selector string) bool {
	el, err := p.page.Context(ctx).Timeout(p.locateTimeout).Element(selector)
	if err != nil {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Timeout(p.locateTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s: %w", selector, err)
	}
	if err := el.Click("left", 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Fill(ctx context.Context, selector, text string) error {
	el, err := p.page.Context(ctx).Timeout(p.locateTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) PressEscape(ctx context.Context) error {
	return p.page.Context(ctx).Keyboard.Press(input.Escape)
}

func (p *rodPage) PressEnter(ctx context.Context) error {
	return p.page.Context(ctx).Keyboard.Press(input.Enter)
}

func (p *rodPage) Screenshot(ctx context.Context, path string) error {
	data, err := p.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0755)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write screenshot %s: %w", path, err)
	}
	return nil
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
