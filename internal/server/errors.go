package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/brightline-electric/servicesite/internal/httputil"
	"github.com/brightline-electric/servicesite/internal/imagestore"
	"github.com/brightline-electric/servicesite/internal/model"
	"github.com/brightline-electric/servicesite/pkg/types"
)

// respondError maps catalog errors onto problem responses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		p := httputil.NewProblem(r, http.StatusUnprocessableEntity, verr.Error())
		p.Errors = verr.Fields
		writeProblem(w, p)
	case errors.Is(err, model.ErrNoImages):
		writeProblem(w, httputil.NewProblem(r, http.StatusUnprocessableEntity, err.Error()))
	case errors.Is(err, imagestore.ErrUnsupportedImage), errors.Is(err, imagestore.ErrImageTooLarge):
		writeProblem(w, httputil.NewProblem(r, http.StatusBadRequest, err.Error()))
	case errors.Is(err, model.ErrNotFound):
		writeProblem(w, httputil.NewProblem(r, http.StatusNotFound, err.Error()))
	case errors.Is(err, model.ErrNotInitialized):
		hlog.FromRequest(r).Error().Err(err).Msg("catalog document missing")
		writeProblem(w, httputil.NewProblem(r, http.StatusServiceUnavailable, "service catalog is not initialized"))
	case errors.Is(err, context.Canceled):
		hlog.FromRequest(r).Warn().Err(err).Msg("request canceled")
		writeProblem(w, httputil.NewProblem(r, http.StatusServiceUnavailable, "request canceled"))
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("catalog operation failed")
		writeProblem(w, httputil.NewProblem(r, http.StatusInternalServerError, "failed to update the service catalog"))
	}
}

// writeProblem adds the success/error envelope fields the admin page reads.
func writeProblem(w http.ResponseWriter, p httputil.Problem) {
	body := types.ErrorResponse{
		Type:      p.Type,
		Title:     p.Title,
		Status:    p.Status,
		Detail:    p.Detail,
		Instance:  p.Instance,
		RequestID: p.RequestID,
		Success:   false,
		Error:     p.Detail,
	}
	for _, fe := range p.Errors {
		body.Errors = append(body.Errors, types.FieldError{Field: fe.Field, Message: fe.Message})
	}
	w.Header().Set("Content-Type", httputil.ContentTypeProblem)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(body)
}
