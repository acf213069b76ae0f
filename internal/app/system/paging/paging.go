// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of rows in a paged list.
const PageSize = 50

// ParsePage extracts the 1-based "page" query parameter.
// Returns 1 if not present or invalid.
func ParsePage(r *http.Request) int {
	s := query.Get(r, "page")
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Window is one page of an in-memory result set.
type Window struct {
	Page       int
	TotalPages int // at least 1, even for an empty set
	From       int // slice bounds into the full set
	To         int
}

// Compute places page over total rows of pageSize each. A page past the
// end yields an empty window rather than an error.
func Compute(total, page, pageSize int) Window {
	if pageSize < 1 {
		pageSize = PageSize
	}
	if page < 1 {
		page = 1
	}
	pages := (total + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	from := (page - 1) * pageSize
	if from > total {
		from = total
	}
	to := from + pageSize
	if to > total {
		to = total
	}
	return Window{Page: page, TotalPages: pages, From: from, To: to}
}

// Slice returns the rows of rows that fall inside w.
func Slice[T any](rows []T, w Window) []T {
	return rows[w.From:w.To]
}
