// Package extract implements the §6c extraction contract: given a tab
// displaying a listing page, evaluate a single script that returns an array
// of records and decode it into the domain model.
package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/browser"
)

// Script is the JS snippet evaluated against a listing tab. It returns a
// JSON array of objects shaped like rawRecord below; the listing DOM
// structure is the site's concern, not this package's — the script is the
// one seam where that knowledge lives, and it is expected to be adapted per
// deployment target.
const Script = `
(() => {
  const pageMatch = location.search.match(/[?&]page=(\d+)/);
  const page = pageMatch ? parseInt(pageMatch[1], 10) : 0;
  return Array.from(document.querySelectorAll('[data-listing-id]')).map((el) => {
    const priceAttr = el.getAttribute('data-price-minor');
    const ratingAttr = el.getAttribute('data-rating');
    const ratingCountAttr = el.getAttribute('data-rating-count');
    return {
      id: el.getAttribute('data-listing-id'),
      url: el.querySelector('a') ? el.querySelector('a').href : location.href,
      title: el.getAttribute('data-title') || (el.querySelector('[data-title]') || {}).textContent || '',
      page: page,
      priceMinor: priceAttr ? parseInt(priceAttr, 10) : null,
      currency: el.getAttribute('data-currency') || '',
      rating: ratingAttr ? parseFloat(ratingAttr) : null,
      ratingCount: ratingCountAttr ? parseInt(ratingCountAttr, 10) : null,
      images: Array.from(el.querySelectorAll('img')).map((img) => img.src),
    };
  });
})()
`

type rawRecord struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Page        int      `json:"page"`
	PriceMinor  *int64   `json:"priceMinor"`
	Currency    string   `json:"currency"`
	Rating      *float64 `json:"rating"`
	RatingCount *int     `json:"ratingCount"`
	Images      []string `json:"images"`
}

// Extract evaluates Script in tid via driver and decodes the result into
// records. A record whose id isn't a 10-character alphanumeric string per
// §6c is dropped rather than persisted, since the persistence contract
// keys on that identifier.
func Extract(ctx context.Context, driver browser.Driver, tid browser.TabID) ([]model.Record, error) {
	var raw []rawRecord
	if err := driver.Evaluate(ctx, tid, Script, &raw); err != nil {
		return nil, fmt.Errorf("extract: evaluate: %w", err)
	}

	records := make([]model.Record, 0, len(raw))
	for _, r := range raw {
		if !isValidIdentifier(r.ID) {
			continue
		}
		records = append(records, model.Record{
			ID:          r.ID,
			URL:         r.URL,
			Title:       r.Title,
			PageNumber:  r.Page,
			PriceMinor:  r.PriceMinor,
			Currency:    r.Currency,
			Rating:      r.Rating,
			RatingCount: r.RatingCount,
			Images:      r.Images,
		})
	}
	return records, nil
}

func isValidIdentifier(id string) bool {
	if len(id) != 10 {
		return false
	}
	for _, r := range id {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			return false
		}
	}
	return true
}

// DecodeJSON is a small helper for tests to build a driver stub's Evaluate
// result without round-tripping through a real browser.
func DecodeJSON(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}
