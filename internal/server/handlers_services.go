package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brightline-electric/servicesite/internal/catalog"
	"github.com/brightline-electric/servicesite/internal/httputil"
	"github.com/brightline-electric/servicesite/internal/model"
	"github.com/brightline-electric/servicesite/pkg/types"
)

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.query.ListServices(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, types.ServiceList{Services: toServices(services)})
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.query.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, toService(svc))
}

// handleCatalogDocument serves the persisted document the public services
// page reads.
func (s *Server) handleCatalogDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.query.Catalog(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, types.ServiceList{Services: toServices(doc.Services)})
}

func (s *Server) handleAddService(w http.ResponseWriter, r *http.Request) {
	form, ok := s.readServiceForm(w, r)
	if !ok {
		return
	}
	defer form.Close()

	req := catalog.AddRequest{
		Images: form.uploads,
		Cover:  form.cover,
	}
	if form.name != nil {
		req.Name = *form.name
	}
	if form.description != nil {
		req.Description = *form.description
	}

	svc, err := s.manager.AddService(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := toService(svc)
	w.Header().Set("Location", "/api/services/"+svc.ID)
	httputil.RespondJSON(w, http.StatusCreated, types.MutationResponse{
		Success: true,
		Message: "Service added successfully",
		Service: &out,
	})
}

func (s *Server) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	form, ok := s.readServiceForm(w, r)
	if !ok {
		return
	}
	defer form.Close()

	svc, err := s.manager.UpdateService(r.Context(), chi.URLParam(r, "id"), catalog.UpdateRequest{
		Name:         form.name,
		Description:  form.description,
		Images:       form.uploads,
		DeleteImages: form.deleteImages,
		Cover:        form.cover,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := toService(svc)
	httputil.RespondJSON(w, http.StatusOK, types.MutationResponse{
		Success: true,
		Message: "Service updated successfully",
		Service: &out,
	})
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.manager.DeleteService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := toService(svc)
	httputil.RespondJSON(w, http.StatusOK, types.MutationResponse{
		Success: true,
		Message: "Service deleted successfully",
		Service: &out,
	})
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	imagePath := strings.TrimSpace(r.URL.Query().Get("path"))
	if imagePath == "" {
		writeProblem(w, httputil.NewProblem(r, http.StatusBadRequest, "query parameter path is required"))
		return
	}

	svc, err := s.manager.DeleteImage(r.Context(), chi.URLParam(r, "id"), imagePath)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := toService(svc)
	httputil.RespondJSON(w, http.StatusOK, types.MutationResponse{
		Success: true,
		Message: "Image deleted successfully",
		Service: &out,
	})
}

func (s *Server) readServiceForm(w http.ResponseWriter, r *http.Request) (*serviceForm, bool) {
	form, err := s.parseServiceForm(r)
	if err != nil {
		var ferr *formError
		if errors.As(err, &ferr) {
			writeProblem(w, httputil.NewProblem(r, ferr.status, ferr.msg))
			return nil, false
		}
		respondError(w, r, err)
		return nil, false
	}
	return form, true
}

func toService(svc model.Service) types.Service {
	images := make([]string, len(svc.Images))
	copy(images, svc.Images)
	return types.Service{
		ID:          svc.ID,
		Name:        svc.Name,
		Description: svc.Description,
		Images:      images,
		CoverPhoto:  svc.CoverPhoto,
	}
}

func toServices(services []model.Service) []types.Service {
	out := make([]types.Service, 0, len(services))
	for _, svc := range services {
		out = append(out, toService(svc))
	}
	return out
}
