package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/till/internal/localstore"
	"github.com/hyperengineering/till/internal/remote"
	"github.com/hyperengineering/till/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	uri   string
	title string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusBadRequest:            {"https://till.dev/errors/bad-request", "Bad Request"},
	http.StatusNotFound:              {"https://till.dev/errors/not-found", "Not Found"},
	http.StatusRequestEntityTooLarge: {"https://till.dev/errors/payload-too-large", "Payload Too Large"},
	http.StatusUnprocessableEntity:   {"https://till.dev/errors/validation-error", "Validation Error"},
	http.StatusInternalServerError:   {"https://till.dev/errors/internal-error", "Internal Server Error"},
	http.StatusServiceUnavailable:    {"https://till.dev/errors/service-unavailable", "Service Unavailable"},
}

func newProblem(r *http.Request, status int, detail string) Problem {
	pt, ok := problemTypes[status]
	if !ok {
		pt = problemType{"https://till.dev/errors/unknown", http.StatusText(status)}
	}
	return Problem{
		Type:     pt.uri,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblemBody(w, status, newProblem(r, status, detail))
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	p := ProblemWithErrors{
		Problem: newProblem(r, http.StatusUnprocessableEntity, detail),
		Errors:  errs,
	}
	writeProblemBody(w, http.StatusUnprocessableEntity, p)
}

// MapError converts core errors to Problem Details responses.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, localstore.ErrNotFound), errors.Is(err, remote.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, remote.ErrUnavailable):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Remote store unavailable")
	case localstore.IsStorageError(err):
		WriteProblem(w, r, http.StatusInternalServerError, "Local storage failure")
	default:
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
