package product

import (
	"context"
	"strconv"
	"strings"

	"github.com/pagefleet/pagefleet/pkg/browser"
)

// locateTab scans every context known to driver for an open tab whose URL
// carries page=<n>, per §4.5: Product workers never open tabs themselves,
// only read ones a General worker already created.
func locateTab(ctx context.Context, driver browser.Driver, page int) (browser.TabID, bool, error) {
	for _, cid := range driver.ListContexts() {
		for _, tid := range driver.ListTabs(cid) {
			url, err := driver.TabURL(ctx, tid)
			if err != nil {
				continue
			}
			if p, ok := pageFromURL(url); ok && p == page {
				return tid, true, nil
			}
		}
	}
	return "", false, nil
}

func pageFromURL(u string) (int, bool) {
	idx := strings.Index(u, "page=")
	if idx < 0 {
		return 0, false
	}
	rest := u[idx+len("page="):]
	if end := strings.IndexAny(rest, "&#"); end >= 0 {
		rest = rest[:end]
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
