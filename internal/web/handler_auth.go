package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vbonduro/bloom/internal/auth"
	"github.com/vbonduro/bloom/internal/domain"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Provider    string    `json:"provider"`
	CreatedAt   time.Time `json:"created_at"`
}

type sessionResponse struct {
	User  *userResponse `json:"user"`
	Token string        `json:"token,omitempty"`
}

func toUserResponse(u *domain.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Provider:    u.Provider,
		CreatedAt:   u.CreatedAt,
	}
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := s.auth.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeAuthError(w, "sign in", err)
		return
	}
	s.writeSession(w, http.StatusOK, u)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := s.auth.SignUpWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeAuthError(w, "sign up", err)
		return
	}
	s.writeSession(w, http.StatusCreated, u)
}

func (s *Server) handleFederatedSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"id_token"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.IDToken == "" {
		s.writeError(w, http.StatusBadRequest, "id_token required")
		return
	}
	u, err := s.auth.SignInWithFederatedCredential(r.Context(), req.IDToken)
	if err != nil {
		s.writeAuthError(w, "federated sign in", err)
		return
	}
	s.writeSession(w, http.StatusOK, u)
}

func (s *Server) handleSignOut(w http.ResponseWriter, _ *http.Request) {
	s.auth.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.auth.SendPasswordReset(r.Context(), req.Email); err != nil {
		s.writeAuthError(w, "send password reset", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.auth.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		s.writeAuthError(w, "confirm password reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.Refresh(r.Context())
	if err != nil {
		s.writeAuthError(w, "refresh", err)
		return
	}
	s.writeSession(w, http.StatusOK, u)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, sessionResponse{User: toUserResponse(s.auth.CurrentUser())})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.DeleteCurrentAccount(r.Context()); err != nil {
		s.writeAuthError(w, "delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAuthEvents streams the signed-in user as server-sent events. The
// first event carries the current state; "user" is null while signed out.
func (s *Server) handleAuthEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	for u := range s.auth.Watch(r.Context()) {
		if err := writeEvent(w, "auth", sessionResponse{User: toUserResponse(u)}); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			s.logger.Warn("auth events flush failed", "error", err)
			return
		}
	}
}

func (s *Server) writeSession(w http.ResponseWriter, status int, u *domain.User) {
	s.writeJSON(w, status, sessionResponse{User: toUserResponse(u), Token: s.auth.SessionToken()})
}

// writeAuthError maps gateway errors to user-facing messages. Anything
// unexpected is logged and reported generically.
func (s *Server) writeAuthError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrNotSignedIn):
		s.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrFederatedDisabled):
		s.writeError(w, http.StatusNotImplemented, err.Error())
	default:
		s.logger.Error("auth request failed", "op", op, "error", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to %s", op))
	}
}

// writeEvent writes one server-sent event with a JSON payload.
func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
