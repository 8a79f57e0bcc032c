// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string            `json:"type,omitempty"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// JSON sends a JSON response with the given status code. The body is encoded
// before the header is written so an unencodable value becomes a 500 problem
// instead of a truncated success.
func JSON(w http.ResponseWriter, status int, data any) {
	contentType := "application/json"
	if _, ok := data.(ProblemDetail); ok {
		contentType = "application/problem+json"
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		Problem(w, http.StatusInternalServerError, "Internal Server Error", "response could not be encoded")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// maxBodyBytes caps request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

// DecodeJSON decodes JSON request body into the target struct. Unknown fields
// and malformed bodies are reported as ErrValidation. An empty body also
// matches io.EOF so callers with optional bodies can tell it apart.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: decode body: %w", ErrValidation, err)
	}
	return nil
}
