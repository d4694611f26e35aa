package shared

import (
	"net/http"
	"strconv"

	"wfm/internal/transport/http/api"
)

// Pagination is a limit/offset window read from the query string. Invalid
// values fall back to the defaults instead of failing the request.
type Pagination struct {
	Limit  int
	Offset int
}

func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	query := r.URL.Query()
	page := Pagination{
		Limit:  queryInt(query.Get("limit"), defaultLimit, 1),
		Offset: queryInt(query.Get("offset"), 0, 0),
	}
	if maxLimit > 0 {
		page.Limit = min(page.Limit, maxLimit)
	}
	return page
}

// Page wraps one window of items for the response body.
func (p Pagination) Page(items any, total int) api.Page {
	return api.Page{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
}

func queryInt(raw string, fallback, floor int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < floor {
		return fallback
	}
	return value
}
