package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/extract"
	"github.com/dgallion1/dealmap/internal/parser"
	"github.com/dgallion1/dealmap/internal/retrieval"
)

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var sv *extract.SchemaViolation
	switch {
	case docmap.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &sv),
		errors.Is(err, docmap.ErrInvalidArgument),
		errors.Is(err, docmap.ErrDuplicateDocument),
		errors.Is(err, retrieval.ErrInvalidScope):
		return http.StatusBadRequest
	case parser.IsExtractionFailure(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError reports err with the status it maps to. Server errors are
// logged; their text is not sent.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
		jsonError(w, "internal error", code)
		return
	}
	resp := map[string]any{"error": err.Error()}
	var sv *extract.SchemaViolation
	if errors.As(err, &sv) {
		resp["problems"] = sv.Problems
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// intParam reads a non-negative integer query parameter. Empty means 0.
func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &paramError{name: name, value: v}
	}
	return n, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + ": " + strconv.Quote(e.value)
}

func (e *paramError) Unwrap() error { return docmap.ErrInvalidArgument }
