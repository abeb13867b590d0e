package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"wildwatch/internal/ratelimit"
	"wildwatch/internal/util"
	"wildwatch/services/api/internal/app"
	"wildwatch/services/api/internal/ingress"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Receiver *ingress.Receiver
	// Redis enables rate limiting on credential endpoints; nil disables it.
	Redis                      redis.UniversalClient
	RateLimitPrefix            string
	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int
	UpdateRateLimitPerMinute   int
	TrustedProxies             *util.TrustedProxies
	CORSOrigins                []string
}

// Server exposes the wildwatch HTTP API.
type Server struct {
	app             *app.App
	receiver        *ingress.Receiver
	mux             *http.ServeMux
	trusted         *util.TrustedProxies
	corsOrigins     []string
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
	updateLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil || cfg.Receiver == nil {
		return nil, errors.New("server requires app and receiver")
	}
	s := &Server{
		app:         cfg.App,
		receiver:    cfg.Receiver,
		mux:         http.NewServeMux(),
		trusted:     cfg.TrustedProxies,
		corsOrigins: cfg.CORSOrigins,
	}
	if cfg.Redis != nil {
		newLimiter := func(name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
			if limit <= 0 {
				limit = fallback
			}
			limiter, err := ratelimit.New(cfg.Redis, cfg.RateLimitPrefix, ratelimit.Config{Name: name, Limit: limit, Window: time.Minute})
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.registerLimiter, err = newLimiter("register", cfg.RegisterRateLimitPerMinute, 5); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", cfg.LoginRateLimitPerMinute, 10); err != nil {
			return nil, err
		}
		if s.updateLimiter, err = newLimiter("update", cfg.UpdateRateLimitPerMinute, 10); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware stack applied.
func (s *Server) Router() http.Handler {
	return util.Chain(s.mux,
		util.WithRequestID,
		util.WithRequestLog,
		util.WithSecurityHeaders,
		util.WithCORS(s.corsOrigins),
	)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/test", s.handleTest)

	// auth
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/jwks", s.handleJWKS)
	s.mux.HandleFunc("/.well-known/jwks.json", s.handleJWKS)
	s.mux.Handle("/api/auth/profile", s.authenticated(s.handleProfile))
	s.mux.Handle("/api/user/update", s.authenticated(s.handleUpdateAccount))

	// pipeline & records
	s.mux.Handle("/api/upload", s.authenticated(s.handleUpload))
	s.mux.Handle("/api/data", s.authenticated(s.handleData))
	s.mux.Handle("/api/save-data", s.authenticated(s.handleSaveData))
	s.mux.Handle("/api/records/", s.adminOnly(s.handleRecordByID))
	s.mux.Handle("/api/wildlife/", s.adminOnly(s.handleRecordByID))

	// users & admin
	s.mux.Handle("/api/users", s.authenticated(s.handleUsers))
	s.mux.Handle("/api/users/", s.adminOnly(s.handleUserByID))
	s.mux.Handle("/api/admin", s.adminOnly(s.handleAdmin))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Test route is working!"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

// pathID extracts the single segment after prefix, or "" when the path has
// none or more than one.
func pathID(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	if id == path || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate applies limiter to the caller; a nil limiter always allows.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	ok, retryAfter := limiter.Allow(r.Context(), key)
	if ok {
		return true
	}
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
	s.audit(r, "rate_limit", "blocked")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
