package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/browser"
)

// extractListingsJS scans the search results page for listing cards. Card
// markup varies, so several container patterns are tried and nested matches
// are deduplicated by the first 100 characters of their text.
const extractListingsJS = `() => {
	const selectors = [
		'[data-testid*="listing"]',
		'div[class*="card"], div[class*="listing"], div[class*="product"]',
		'a[href*="/p/"], a[href*="/listing/"]',
		'article, [role="listitem"]',
	];
	const containers = [];
	for (const sel of selectors) {
		containers.push(...document.querySelectorAll(sel));
	}

	const seen = new Set();
	const results = [];
	for (const c of containers) {
		const key = (c.innerText || '').trim().slice(0, 100);
		if (!key || seen.has(key)) continue;
		seen.add(key);

		const titleEl = c.querySelector('[data-testid*="title"], h2, h3, [class*="title"]') || c.querySelector('p, span');
		const title = titleEl ? titleEl.innerText.trim().slice(0, 100) : '';
		if (title.length < 3) continue;

		let priceText = '';
		const priceEl = c.querySelector('[data-testid*="price"], [class*="price"]');
		if (priceEl) priceText = priceEl.innerText.trim();
		if (!/\d/.test(priceText)) {
			const m = (c.innerText || '').match(/(?:From\s+)?S?\$\s*[\d,]+(?:\.\d{2})?/i);
			priceText = m ? m[0] : '';
		}

		const sellerEl = c.querySelector('[class*="seller"], [class*="user"], [class*="owner"]');
		const seller = sellerEl ? sellerEl.innerText.trim() : 'Unknown Seller';

		let href = '';
		const link = c.querySelector('a[href*="/p/"], a[href*="/listing/"]');
		if (link) href = link.getAttribute('href') || '';
		else if (c.tagName === 'A') href = c.getAttribute('href') || '';

		results.push({ title, price: priceText, seller, url: href });
		if (results.length >= 20) break;
	}
	return results;
}`

// Extract scrapes the current page for listings, filters by maxPrice
// (0 disables the cap) and assigns indices.
func Extract(ctx context.Context, page browser.Page, baseURL string, maxPrice float64) ([]Listing, error) {
	raw, err := page.Evaluate(ctx, extractListingsJS)
	if err != nil {
		return nil, fmt.Errorf("extract listings: %w", err)
	}

	var scraped []struct {
		Title  string `json:"title"`
		Price  string `json:"price"`
		Seller string `json:"seller"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(raw, &scraped); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}

	listings := make([]Listing, 0, len(scraped))
	for _, s := range scraped {
		url := s.URL
		if strings.HasPrefix(url, "/") {
			url = strings.TrimRight(baseURL, "/") + url
		}
		listings = append(listings, Listing{
			Title:      s.Title,
			Price:      ParsePrice(s.Price),
			PriceRaw:   s.Price,
			SellerName: s.Seller,
			ListingURL: url,
		})
	}

	return Reindex(FilterByMaxPrice(listings, maxPrice)), nil
}

// extractDetailsJS pulls the description and the structured label/value pairs
// from an open listing page.
const extractDetailsJS = `() => {
	const out = { description: '', pairs: {} };

	let descEl = document.querySelector('[data-testid*="description"], [class*="description"]');
	if (!descEl) {
		for (const h of document.querySelectorAll('h2, h3, p')) {
			if (/^description$/i.test((h.innerText || '').trim())) {
				descEl = h.nextElementSibling;
				break;
			}
		}
	}
	if (descEl) out.description = (descEl.innerText || '').trim();

	const labels = ['Condition', 'Battery Health', 'Screen', 'Body', 'Warranty', 'Model', 'Storage', 'Color', 'Set'];
	const els = Array.from(document.querySelectorAll('p, span, div'));
	for (let i = 0; i < els.length - 1; i++) {
		const text = (els[i].innerText || '').trim();
		if (!text || text.length >= 30) continue;
		for (const label of labels) {
			if (text.includes(label)) {
				const val = (els[i + 1].innerText || '').trim();
				if (val && val !== text) out.pairs[text] = val;
			}
		}
	}
	return out;
}`

// ExtractDetails populates a listing's lazy fields from its open detail page.
func ExtractDetails(ctx context.Context, page browser.Page, l *Listing) error {
	raw, err := page.Evaluate(ctx, extractDetailsJS)
	if err != nil {
		return fmt.Errorf("extract details: %w", err)
	}

	var out struct {
		Description string            `json:"description"`
		Pairs       map[string]string `json:"pairs"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode details: %w", err)
	}

	if out.Description != "" {
		l.Desc = out.Description
	}
	if len(out.Pairs) > 0 {
		l.Details = out.Pairs
	}
	return nil
}
