package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"wildwatch/internal/usertoken"
	"wildwatch/pkg/domain"
)

// Principal is the verified caller attached to the request context.
type Principal struct {
	SubjectID string
	Role      domain.UserRole
}

type principalKey struct{}

// PrincipalFromContext returns the caller set by the gate.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type authHandler func(http.ResponseWriter, *http.Request, Principal)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.app.VerifyToken(bearerToken(r))
		if err != nil {
			reason := "invalid"
			msg := "unauthorized"
			switch {
			case errors.Is(err, usertoken.ErrMissingCredential):
				reason = "missing"
			case errors.Is(err, usertoken.ErrExpiredCredential):
				reason = "expired"
				msg = "token expired"
			}
			s.audit(r, "access_gate", "denied", "reason", reason)
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		p := Principal{SubjectID: claims.SubjectID, Role: claims.Role}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)), p)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, p Principal) {
		if p.Role != domain.RoleAdmin {
			s.audit(r, "admin_gate", "denied", "user_id", p.SubjectID, "role", p.Role)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, p)
	})
}

func bearerToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[7:])
}
