package browser

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// OverlayMonitor periodically sweeps the page for transient modals. Dismissal
// is idempotent and commutes with other page actions, so no lock is needed
// against the main loop.
type OverlayMonitor struct {
	page     Page
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewOverlayMonitor(page Page, interval time.Duration) *OverlayMonitor {
	return &OverlayMonitor{page: page, interval: interval}
}

// Start launches the sweep loop. Stop or parent-context cancellation ends it.
func (m *OverlayMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if DismissOverlay(ctx, m.page) {
					log.Printf("Overlay monitor cleared a modal")
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (m *OverlayMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// unreadIndicatorJS reports whether the inbox shows a new-message badge.
const unreadIndicatorJS = `() => {
	const badge = document.querySelector('[data-testid="inbox-badge"], [aria-label*="unread"], .unread-badge, .notification-badge');
	if (!badge) return false;
	const n = parseInt((badge.innerText || '').trim(), 10);
	return isNaN(n) ? true : n > 0;
}`

// LiveCapture periodically screenshots the page to a well-known path and
// polls for new-message indicators, raising a pending flag the REPL checks
// between turns.
type LiveCapture struct {
	page     Page
	interval time.Duration
	path     string
	pending  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLiveCapture(page Page, interval time.Duration, path string) *LiveCapture {
	return &LiveCapture{page: page, interval: interval, path: path}
}

func (l *LiveCapture) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.capture(ctx)
			}
		}
	}()
}

func (l *LiveCapture) capture(ctx context.Context) {
	if err := l.page.Screenshot(ctx, l.path); err != nil {
		log.Printf("Live capture failed: %v", err)
	}
	raw, err := l.page.Evaluate(ctx, unreadIndicatorJS)
	if err != nil {
		return
	}
	var unread bool
	if json.Unmarshal(raw, &unread) == nil && unread {
		l.pending.Store(true)
	}
}

// Pending reports whether unread messages were seen since the last Clear.
func (l *LiveCapture) Pending() bool {
	return l.pending.Load()
}

// Clear resets the pending flag, typically after the inbox has been visited.
func (l *LiveCapture) Clear() {
	l.pending.Store(false)
}

func (l *LiveCapture) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
