// Package market models scraped marketplace listings and extracts them from
// live search pages.
package market

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Listing is one scraped marketplace item. Index addresses it within the
// current result set; Description and Details are populated lazily when the
// listing is opened.
type Listing struct {
	Index      int               `json:"index"`
	Title      string            `json:"title"`
	Price      float64           `json:"price"`
	PriceRaw   string            `json:"price_raw,omitempty"`
	SellerName string            `json:"seller_name"`
	ListingURL string            `json:"listing_url"`
	Desc       string            `json:"description,omitempty"`
	Details    map[string]string `json:"structured_details,omitempty"`
}

var priceRe = regexp.MustCompile(`[\d,]+(?:\.\d{1,2})?`)

// ParsePrice extracts a numeric price from strings like "From S$538" or
// "$1,200.50". Returns 0 when no number is present.
func ParsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	m := priceRe.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

// FilterByMaxPrice keeps listings with a known price at or under max,
// preserving relative order. A max of 0 means no cap (unknown prices still
// drop).
func FilterByMaxPrice(listings []Listing, max float64) []Listing {
	out := make([]Listing, 0, len(listings))
	for _, l := range listings {
		if l.Price <= 0 {
			continue
		}
		if max > 0 && l.Price > max {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Reindex renumbers listings 0..n-1 after filtering.
func Reindex(listings []Listing) []Listing {
	for i := range listings {
		listings[i].Index = i
	}
	return listings
}

// Format renders listings for the REPL.
func Format(listings []Listing) string {
	if len(listings) == 0 {
		return "No listings found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d listings:\n", len(listings))
	for _, l := range listings {
		fmt.Fprintf(&b, "  [%d] %s - S$%.0f (%s)\n", l.Index, l.Title, l.Price, l.SellerName)
	}
	return strings.TrimRight(b.String(), "\n")
}
