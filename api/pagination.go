package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 200
)

// totalCountHeader reports the size of the full collection on paged lists.
const totalCountHeader = "X-Total-Count"

// parsePagination reads "limit" and "offset" query parameters from the
// request. Paging is opt-in: paged is false when neither parameter is set,
// and the caller returns the whole collection. Invalid values fall back to
// defaults (offset=0, limit=defaultPageLimit); limit is capped at
// maxPageLimit.
func parsePagination(r *http.Request) (limit, offset int, paged bool) {
	q := r.URL.Query()
	if !q.Has("limit") && !q.Has("offset") {
		return 0, 0, false
	}

	limit = defaultPageLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset, true
}

// paginateSlice returns (start, end) indices for slicing a collection of
// totalCount items. If offset exceeds totalCount, start == end (empty page).
func paginateSlice(totalCount, limit, offset int) (start, end int) {
	start = min(offset, totalCount)
	end = min(start+limit, totalCount)
	return start, end
}

// page applies the request's pagination to items and sets the total count
// header when paging is in effect.
func page[T any](w http.ResponseWriter, r *http.Request, items []T) []T {
	limit, offset, paged := parsePagination(r)
	if !paged {
		return items
	}
	w.Header().Set(totalCountHeader, strconv.Itoa(len(items)))
	start, end := paginateSlice(len(items), limit, offset)
	return items[start:end]
}
