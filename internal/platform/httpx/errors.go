// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for transport-level failures.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
)

// Mapping ties a domain error to a problem response.
type Mapping struct {
	Err    error
	Status int
	Title  string
	Type   string
}

var defaultMappings = []Mapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
}

// RespondError maps errors to HTTP responses using RFC7807. Domain mappings
// are checked first; unknown errors become a 500 without detail.
func RespondError(w http.ResponseWriter, err error, mappings ...Mapping) {
	for _, table := range [][]Mapping{mappings, defaultMappings} {
		for _, m := range table {
			if errors.Is(err, m.Err) {
				writeProblem(w, ProblemDetail{Type: m.Type, Title: m.Title, Status: m.Status, Detail: err.Error()})
				return
			}
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
