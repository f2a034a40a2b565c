package shared

import (
	"errors"
	"math"
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 20
	maxPerPage     = 200
)

// ErrInvalidPage reports a malformed page or perPage query value.
var ErrInvalidPage = errors.New("invalid pagination parameters")

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata. perPage is clamped to maxPerPage.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Bounds returns the half-open slice window of the current page.
func (p Pagination) Bounds() (start, end int) {
	start = (p.Page - 1) * p.PerPage
	if start > p.Total {
		start = p.Total
	}
	end = start + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return start, end
}

// SetHeaders exposes the page metadata on a response.
func (p Pagination) SetHeaders(h http.Header) {
	h.Set("X-Total-Count", strconv.Itoa(p.Total))
	h.Set("X-Page", strconv.Itoa(p.Page))
	h.Set("X-Per-Page", strconv.Itoa(p.PerPage))
	h.Set("X-Total-Pages", strconv.Itoa(p.TotalPages))
}

// PageRequest reads page and perPage from a query. ok is false when neither
// is present, meaning the caller wants the unpaged listing.
func PageRequest(r *http.Request) (page, perPage int, ok bool, err error) {
	q := r.URL.Query()
	rawPage, rawPer := q.Get("page"), q.Get("perPage")
	if rawPage == "" && rawPer == "" {
		return 0, 0, false, nil
	}
	if page, err = parsePositive(rawPage); err != nil {
		return 0, 0, false, err
	}
	if perPage, err = parsePositive(rawPer); err != nil {
		return 0, 0, false, err
	}
	return page, perPage, true, nil
}

func parsePositive(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, ErrInvalidPage
	}
	return n, nil
}
