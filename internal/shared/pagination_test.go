package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	require.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)

	p = NewPagination(2, 1000, 450)
	require.Equal(t, 200, p.PerPage)
	require.Equal(t, 3, p.TotalPages)
}

func TestPaginationBounds(t *testing.T) {
	cases := []struct {
		page, perPage, total int
		start, end           int
	}{
		{1, 10, 25, 0, 10},
		{3, 10, 25, 20, 25},
		{4, 10, 25, 25, 25},
		{1, 10, 0, 0, 0},
	}
	for _, tc := range cases {
		start, end := NewPagination(tc.page, tc.perPage, tc.total).Bounds()
		require.Equal(t, tc.start, start)
		require.Equal(t, tc.end, end)
	}
}

func TestPageRequest(t *testing.T) {
	_, _, ok, err := PageRequest(httptest.NewRequest(http.MethodGet, "/deliveries", nil))
	require.NoError(t, err)
	require.False(t, ok)

	page, perPage, ok, err := PageRequest(httptest.NewRequest(http.MethodGet, "/deliveries?page=2&perPage=5", nil))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, page)
	require.Equal(t, 5, perPage)

	page, perPage, ok, err = PageRequest(httptest.NewRequest(http.MethodGet, "/deliveries?perPage=5", nil))
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, page)
	require.Equal(t, 5, perPage)

	for _, q := range []string{"?page=0", "?page=x", "?perPage=-1"} {
		_, _, _, err = PageRequest(httptest.NewRequest(http.MethodGet, "/deliveries"+q, nil))
		require.ErrorIs(t, err, ErrInvalidPage, q)
	}
}

func TestPaginationHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	NewPagination(2, 10, 25).SetHeaders(rec.Header())
	require.Equal(t, "25", rec.Header().Get("X-Total-Count"))
	require.Equal(t, "2", rec.Header().Get("X-Page"))
	require.Equal(t, "10", rec.Header().Get("X-Per-Page"))
	require.Equal(t, "3", rec.Header().Get("X-Total-Pages"))
}
