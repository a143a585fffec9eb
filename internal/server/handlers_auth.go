package server

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/brightline-electric/servicesite/internal/auth"
	"github.com/brightline-electric/servicesite/internal/httputil"
	"github.com/brightline-electric/servicesite/pkg/types"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeProblem(w, httputil.NewProblem(r, http.StatusBadRequest, err.Error()))
		return
	}

	session, err := s.authn.Login(req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		hlog.FromRequest(r).Warn().Msg("admin login rejected")
		httputil.RespondJSON(w, http.StatusUnauthorized, types.LoginResponse{
			Success: false,
			Message: "Invalid password",
		})
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("admin login failed")
		writeProblem(w, httputil.NewProblem(r, http.StatusInternalServerError, "login failed"))
		return
	}

	hlog.FromRequest(r).Info().Msg("admin login")
	httputil.RespondJSON(w, http.StatusOK, types.LoginResponse{
		Success:   true,
		Redirect:  types.AdminRedirect,
		Token:     session.Token,
		ExpiresAt: &session.ExpiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.BearerToken(r); token != "" {
		s.authn.Logout(token)
	}
	w.WriteHeader(http.StatusNoContent)
}
