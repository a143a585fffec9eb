// Package httputil holds the HTTP plumbing shared by the handlers: RFC 9457
// problem responses, JSON helpers, middleware and the operational endpoints.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/brightline-electric/servicesite/internal/model"
)

// ContentTypeProblem is the media type of error responses.
const ContentTypeProblem = "application/problem+json"

// Problem is an RFC 9457 problem details document.
type Problem struct {
	Type      string             `json:"type"`
	Title     string             `json:"title"`
	Status    int                `json:"status"`
	Detail    string             `json:"detail,omitempty"`
	Instance  string             `json:"instance,omitempty"`
	RequestID string             `json:"requestId,omitempty"`
	Errors    []model.FieldError `json:"errors,omitempty"`
}

// NewProblem builds a problem for the request with the standard title of status.
func NewProblem(r *http.Request, status int, detail string) Problem {
	p := Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
	if r != nil {
		p.Instance = r.URL.Path
		if id, ok := hlog.IDFromRequest(r); ok {
			p.RequestID = id.String()
		}
	}
	return p
}

// WriteProblem writes p with the problem media type.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", ContentTypeProblem)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// RespondProblem writes a problem response with the given status and detail.
func RespondProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	WriteProblem(w, NewProblem(r, status, detail))
}

// RespondProblemf is RespondProblem with a formatted detail.
func RespondProblemf(w http.ResponseWriter, r *http.Request, status int, format string, args ...any) {
	RespondProblem(w, r, status, fmt.Sprintf(format, args...))
}

// RespondValidation writes a 422 problem listing every field failure.
func RespondValidation(w http.ResponseWriter, r *http.Request, fields []model.FieldError) {
	detail := "one or more fields failed validation"
	if len(fields) > 0 {
		detail = fields[0].Message
		if len(fields) > 1 {
			detail = fmt.Sprintf("%s (and %d more)", detail, len(fields)-1)
		}
	}
	p := NewProblem(r, http.StatusUnprocessableEntity, detail)
	p.Errors = fields
	WriteProblem(w, p)
}

// RespondJSON writes v as JSON with the given status.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// DecodeJSON decodes a JSON request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
