package server

import (
	"net/http"

	"wildwatch/pkg/domain"
	"wildwatch/services/api/internal/app"
)

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.ListUsers()
	if err != nil {
		writeIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users, "count": len(users)})
}

type adminUpdateUserRequest struct {
	Email       *string `json:"email"`
	DisplayName *string `json:"displayName"`
	Role        *string `json:"role"`
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, p Principal) {
	id := pathID(r.URL.Path, "/api/users/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req adminUpdateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		upd := app.UserUpdate{Email: req.Email, DisplayName: req.DisplayName}
		if req.Role != nil {
			role := domain.UserRole(*req.Role)
			upd.Role = &role
		}
		user, err := s.app.AdminUpdateUser(p.SubjectID, id, upd)
		if err != nil {
			s.audit(r, "admin.user.update", "failed", "actor_id", p.SubjectID, "target_id", id)
			writeIdentityError(w, r, err)
			return
		}
		s.audit(r, "admin.user.update", "success", "actor_id", p.SubjectID, "target_id", id)
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := s.app.DeleteUser(p.SubjectID, id); err != nil {
			s.audit(r, "admin.user.delete", "failed", "actor_id", p.SubjectID, "target_id", id)
			writeIdentityError(w, r, err)
			return
		}
		s.audit(r, "admin.user.delete", "success", "actor_id", p.SubjectID, "target_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request, _ Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome, Admin!"})
}
