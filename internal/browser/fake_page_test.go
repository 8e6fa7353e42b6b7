package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// fakePage is an in-memory Page for tests. Evaluate results are matched by a
// substring of the script so tests can answer different probes differently.
type fakePage struct {
	mu sync.Mutex

	visible     map[string]bool
	evalResults map[string]string
	evalErr     error

	navigated   []string
	clicked     []string
	filled      map[string]string
	screenshots []string
	escPresses  int
	entPresses  int
	url         string
}

func newFakePage() *fakePage {
	return &fakePage{
		visible:     make(map[string]bool),
		evalResults: make(map[string]string),
		filled:      make(map[string]string),
	}
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	f.url = url
	return nil
}

func (f *fakePage) WaitStable(ctx context.Context) error { return nil }

func (f *fakePage) Evaluate(ctx context.Context, js string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	for marker, result := range f.evalResults {
		if strings.Contains(js, marker) {
			return json.RawMessage(result), nil
		}
	}
	return json.RawMessage(`null`), nil
}

func (f *fakePage) Exists(ctx context.Context, selector string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible[selector]
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visible[selector] {
		return fmt.Errorf("element %s: not found", selector)
	}
	f.clicked = append(f.clicked, selector)
	return nil
}

func (f *fakePage) Fill(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visible[selector] {
		return fmt.Errorf("element %s: not found", selector)
	}
	f.filled[selector] = text
	return nil
}

func (f *fakePage) PressEscape(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escPresses++
	return nil
}

func (f *fakePage) PressEnter(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entPresses++
	return nil
}

func (f *fakePage) Screenshot(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screenshots = append(f.screenshots, path)
	return nil
}

func (f *fakePage) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}
