// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// ErrorMapping binds a domain error to an HTTP status. Fields, when set,
// extracts per-field problems for the response body.
type ErrorMapping struct {
	Target error
	Status int
	Title  string
	Fields func(error) map[string]string
}

var defaultMappings = []ErrorMapping{
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: ErrDuplicate, Status: http.StatusConflict, Title: "Duplicate"},
	{Target: ErrConflict, Status: http.StatusConflict, Title: "Conflict"},
	{Target: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
}

// RespondError maps domain errors to HTTP responses using RFC7807. Extra
// mappings are checked before the package sentinels.
func RespondError(w http.ResponseWriter, err error, mappings ...ErrorMapping) {
	for _, m := range append(mappings, defaultMappings...) {
		if errors.Is(err, m.Target) {
			problem := ProblemDetail{Title: m.Title, Status: m.Status, Detail: err.Error()}
			if m.Fields != nil {
				problem.Errors = m.Fields(err)
			}
			JSON(w, m.Status, problem)
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
