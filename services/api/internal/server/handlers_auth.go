package server

import (
	"net/http"
	"strings"

	"wildwatch/pkg/domain"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Secret   string `json:"secret"`
}

func (c credentialsRequest) password() string {
	return firstNonEmpty(c.Password, c.Secret)
}

type authResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many signup attempts") {
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	// Self-service signups are always plain users.
	user, token, err := s.app.Register(req.Email, req.password(), domain.RoleUser)
	if err != nil {
		s.audit(r, "auth.register", "failed", "email", strings.ToLower(strings.TrimSpace(req.Email)))
		writeIdentityError(w, r, err)
		return
	}
	s.audit(r, "auth.register", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Message: "User registered successfully", Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	user, token, err := s.app.Authenticate(req.Email, req.password())
	if err != nil {
		s.audit(r, "auth.login", "failed", "email", strings.ToLower(strings.TrimSpace(req.Email)))
		writeIdentityError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Message: "Login successful", Token: token, User: user})
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.app.JWKS()})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, p Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	profile, err := s.app.Profile(p.SubjectID)
	if err != nil {
		writeIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type updateAccountRequest struct {
	Email           string `json:"email"`
	CurrentPassword string `json:"currentPassword"`
	CurrentSecret   string `json:"currentSecret"`
	NewPassword     string `json:"newPassword"`
	NewSecret       string `json:"newSecret"`
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request, p Principal) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.updateLimiter, "too many update attempts") {
		return
	}
	var req updateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	user, err := s.app.UpdateAccount(
		p.SubjectID,
		req.Email,
		firstNonEmpty(req.CurrentPassword, req.CurrentSecret),
		firstNonEmpty(req.NewPassword, req.NewSecret),
	)
	if err != nil {
		s.audit(r, "user.update", "failed", "user_id", p.SubjectID)
		writeIdentityError(w, r, err)
		return
	}
	s.audit(r, "user.update", "success", "user_id", p.SubjectID)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully", "user": user})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
