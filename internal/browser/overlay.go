package browser

import (
	"context"
	"encoding/json"
	"log"
)

// overlayPredicateJS detects a modal-like element: a dialog role marker, or
// any element covering at least 30% of the viewport with a high z-index.
const overlayPredicateJS = `() => {
	if (document.querySelector('[role="dialog"], [aria-modal="true"]')) return true;
	const vw = window.innerWidth, vh = window.innerHeight;
	for (const el of document.querySelectorAll('body *')) {
		const style = window.getComputedStyle(el);
		const z = parseInt(style.zIndex, 10);
		if (isNaN(z) || z < 1000) continue;
		if (style.display === 'none' || style.visibility === 'hidden') continue;
		const r = el.getBoundingClientRect();
		if (r.width * r.height >= vw * vh * 0.3) return true;
	}
	return false;
}`

// overlayTextCloseJS scans clickable elements for close-intent text or labels,
// skipping anything that advances a flow, and clicks the first match.
const overlayTextCloseJS = `() => {
	const closeWords = ['close', 'dismiss', 'not now', 'no thanks', 'maybe later', 'skip', 'got it', 'x', '×'];
	const skipWords = ['continue', 'next', 'submit', 'accept all'];
	const candidates = document.querySelectorAll('button, [role="button"], a');
	for (const el of candidates) {
		const text = ((el.innerText || '') + ' ' + (el.getAttribute('aria-label') || '')).trim().toLowerCase();
		if (!text) continue;
		if (skipWords.some(w => text.includes(w))) continue;
		if (closeWords.some(w => text === w || text.includes(w))) {
			el.click();
			return true;
		}
	}
	return false;
}`

var overlayCloseStrategies = []Strategy{
	{Name: "dialog close button", Selector: `[role="dialog"] [aria-label="Close"]`},
	{Name: "aria close", Selector: `[aria-label="Close"]`},
	{Name: "modal close class", Selector: `.modal-close, .close-button, button.close`},
	{Name: "dismiss testid", Selector: `[data-testid="modal-close"]`},
}

// DismissOverlay detects and closes a transient modal blocking the page.
// Returns whether anything was dismissed; callers proceed either way.
func DismissOverlay(ctx context.Context, page Page) bool {
	raw, err := page.Evaluate(ctx, overlayPredicateJS)
	if err != nil {
		return false
	}
	var present bool
	if err := json.Unmarshal(raw, &present); err != nil || !present {
		return false
	}

	for _, s := range overlayCloseStrategies {
		if page.Exists(ctx, s.Selector) {
			if err := page.Click(ctx, s.Selector); err == nil {
				log.Printf("Dismissed overlay via %s", s.Name)
				return true
			}
		}
	}

	if raw, err := page.Evaluate(ctx, overlayTextCloseJS); err == nil {
		var clicked bool
		if json.Unmarshal(raw, &clicked) == nil && clicked {
			log.Printf("Dismissed overlay via clickable-text scan")
			return true
		}
	}

	if err := page.PressEscape(ctx); err == nil {
		log.Printf("Sent Escape to dismiss overlay")
		return true
	}
	return false
}
