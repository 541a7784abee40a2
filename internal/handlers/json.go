// File: internal/handlers/json.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/iyunix/go-medgemma/internal/domain"
)

// writeJSON is a helper for sending JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorBody is the shape of every error returned before streaming starts.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
}

// writeError is a helper for sending JSON error responses.
func writeError(w http.ResponseWriter, status int, code, message, field string) {
	writeJSON(w, status, errorBody{Error: message, Code: code, Field: field})
}

// decodeJSON reads at most limit bytes of r's body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return mbe
		}
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("", domain.CodeBadJSON, "request body is empty")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.NewValidationError(typeErr.Field, domain.CodeInvalidValue, "field has the wrong type")
		}
		return domain.NewValidationError("", domain.CodeBadJSON, "request body is not valid JSON")
	}
	return nil
}
