// Package pagination builds the page links shown under paginated listings.
package pagination

import (
	"encoding/json"
	"strconv"
)

// Gap is the rendering of a run of skipped pages.
const Gap = "."

// Item is either a page number or a gap.
type Item struct {
	Page int // zero for a gap
}

// IsGap reports whether the item stands for skipped pages.
func (i Item) IsGap() bool {
	return i.Page == 0
}

// String returns the page number, or Gap.
func (i Item) String() string {
	if i.IsGap() {
		return Gap
	}
	return strconv.Itoa(i.Page)
}

// MarshalJSON encodes a page as a number and a gap as the Gap string.
func (i Item) MarshalJSON() ([]byte, error) {
	if i.IsGap() {
		return json.Marshal(Gap)
	}
	return json.Marshal(i.Page)
}

// Window returns the pages to link from page, keeping offset pages on either
// side of it. The first and last page are always included and skipped runs
// collapse into a single gap.
func Window(page, offset, last int) []Item {
	items := []Item{}
	if last <= 0 {
		return items
	}

	var start int
	end := max(2*offset+3, page+offset+1)
	if page-offset <= 0 {
		start = max(page-offset, 1)
	} else {
		start = min(page-offset, last-(2*offset+1))
	}

	skipped := false
	for p := 1; p <= last; p++ {
		if p == 1 || p == last || (p >= start && p < end) {
			items = append(items, Item{Page: p})
			skipped = false
			continue
		}
		if !skipped {
			items = append(items, Item{})
			skipped = true
		}
	}
	return items
}
