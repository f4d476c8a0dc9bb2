package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cowly/internal/ratelimit"
	"cowly/internal/util"
	"cowly/pkg/auth"
	"cowly/pkg/domain"
	"cowly/pkg/herd"
	"cowly/services/api/internal/app"
)

const serviceName = "api"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Hub            *Hub
	AllowedOrigins []string
	TrustedProxies *util.TrustedProxies

	// Rate limiting is enabled when RedisAddr is set.
	RedisAddr               string
	RedisPassword           string
	RegisterRateLimitPerMin int
	LoginRateLimitPerMin    int
}

// Server exposes the HTTP API.
type Server struct {
	app             *app.App
	hub             *Hub
	mux             *http.ServeMux
	allowedOrigins  []string
	trusted         *util.TrustedProxies
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	s := &Server{
		app:            cfg.App,
		hub:            cfg.Hub,
		mux:            http.NewServeMux(),
		allowedOrigins: cfg.AllowedOrigins,
		trusted:        cfg.TrustedProxies,
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		registerLimit := cfg.RegisterRateLimitPerMin
		if registerLimit <= 0 {
			registerLimit = 5
		}
		loginLimit := cfg.LoginRateLimitPerMin
		if loginLimit <= 0 {
			loginLimit = 10
		}
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			prefix := "cowly:api:ratelimit:" + name
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.registerLimiter, err = newLimiter("register", registerLimit); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(serviceName, util.WithCORS(s.allowedOrigins, util.WithSecurityHeaders(s.mux))))
}

// Close releases the rate limiter connections.
func (s *Server) Close() error {
	var errs []error
	for _, l := range []*ratelimit.FixedWindowLimiter{s.registerLimiter, s.loginLimiter} {
		if l != nil {
			errs = append(errs, l.Close())
		}
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)

	s.mux.Handle("/user/profile", s.withRole(domain.RoleFarmer, s.handleProfile))
	s.mux.Handle("/user/update", s.authenticated(s.handleUpdateProfile))

	s.mux.Handle("/cows/addcow", s.withRole(domain.RoleFarmer, s.handleAddCow))
	s.mux.Handle("/cows/getall", s.withRole(domain.RoleFarmer, s.handleListCows))
	s.mux.Handle("/cows/search", s.withRole(domain.RoleFarmer, s.handleSearchCows))
	s.mux.Handle("/cows/live", s.liveFeed())
	s.mux.Handle("/cows/", s.withRole(domain.RoleFarmer, s.handleCowByID))

	s.mux.Handle("/home/", s.withRole(domain.RoleFarmer, s.handleHome))

	s.mux.Handle("/admin/dashboard", s.withRole(domain.RoleAdmin, s.handleDashboard))
	s.mux.Handle("/admin/users", s.withRole(domain.RoleAdmin, s.handleAdminUsers))
	s.mux.Handle("/admin/delete_user/", s.withRole(domain.RoleAdmin, s.handleDeleteUser))

	s.mux.Handle("/predict/milk", s.authenticated(s.handlePredictMilk))
	s.mux.Handle("/predict/disease", s.withRole(domain.RoleFarmer, s.handlePredictDisease))
}

type authHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.authorize(w, r, false)
		if !ok {
			return
		}
		next(w, r, uid)
	})
}

func (s *Server) withRole(role domain.UserRole, next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.authorize(w, r, false)
		if !ok {
			return
		}
		if !s.checkRole(w, r, uid, role) {
			return
		}
		next(w, r, uid)
	})
}

// liveFeed accepts the token from ?token= too, since browsers cannot set
// headers on a websocket handshake.
func (s *Server) liveFeed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		if s.hub == nil {
			writeError(w, http.StatusServiceUnavailable, "live feed disabled")
			return
		}
		uid, ok := s.authorize(w, r, true)
		if !ok {
			return
		}
		if !s.checkRole(w, r, uid, domain.RoleFarmer) {
			return
		}
		s.hub.serveWS(w, r, uid)
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, allowQuery bool) (string, bool) {
	token, ok := bearerToken(r)
	if !ok && allowQuery {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
		ok = token != ""
	}
	if !ok {
		s.audit(r, "api.authorize", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, "Token is missing!")
		return "", false
	}
	uid, err := s.app.Authenticate(token)
	if err != nil {
		s.audit(r, "api.authorize", "fail", "reason", "invalid_token")
		writeError(w, http.StatusUnauthorized, "Token is invalid!")
		return "", false
	}
	return uid, true
}

func (s *Server) checkRole(w http.ResponseWriter, r *http.Request, uid string, want domain.UserRole) bool {
	role, ok, err := s.app.UserRole(r.Context(), uid)
	if err != nil {
		s.writeAppError(w, r, err)
		return false
	}
	if !ok || role != want {
		s.audit(r, "api.authorize", "forbidden", "user_id", uid, "role", string(role), "required", string(want))
		writeError(w, http.StatusForbidden, string(want)+" access required!")
		return false
	}
	return true
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many registration attempts") {
		s.audit(r, "api.register", "rate_limited")
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	uid, err := s.app.Register(r.Context(), app.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		s.audit(r, "api.register", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "api.register", "success", "user_id", uid, "role", req.Role)
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "User registered successfully",
		"user_id": uid,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "api.login", "rate_limited")
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "api.login", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "api.login", "success", "user_id", res.UserID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"token":   res.Token,
		"user_id": res.UserID,
		"role":    string(res.Role),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if token, ok := bearerToken(r); ok {
		if err := s.app.Logout(token); err != nil {
			util.LoggerFromContext(r.Context()).Error("revoke session failed", "err", err)
		} else {
			s.audit(r, "api.logout", "success")
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Successfully logged out. Please delete the token on client side.",
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, uid string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	details, err := s.app.Profile(r.Context(), uid)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": details})
}

type updateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, uid string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.UpdateProfile(r.Context(), uid, req.Name, req.Email); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}

func (s *Server) handleAddCow(w http.ResponseWriter, r *http.Request, uid string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req map[string]any
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.AddCow(r.Context(), uid, req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cow added successfully"})
}

func (s *Server) handleListCows(w http.ResponseWriter, r *http.Request, uid string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	cows, err := s.app.ListCows(r.Context(), uid)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if len(cows) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"data": cows, "message": app.ErrNoCows.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cows})
}

func (s *Server) handleSearchCows(w http.ResponseWriter, r *http.Request, uid string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	results, err := s.app.SearchCows(r.Context(), uid, q.Get("field"), q.Get("value"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleCowByID serves /cows/update/{id}, /cows/delete/{id} and
// /cows/{id}/profile.
func (s *Server) handleCowByID(w http.ResponseWriter, r *http.Request, uid string) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/cows/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if parts[1] == "profile" && r.Method == http.MethodGet {
		profile, err := s.app.CowProfile(r.Context(), uid, parts[0])
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
		return
	}
	switch {
	case parts[0] == "update":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w)
			return
		}
		var req map[string]any
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := s.app.UpdateCow(r.Context(), uid, parts[1], req); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Cow updated successfully"})
	case parts[0] == "delete":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		cowID, err := s.app.DeleteCow(r.Context(), uid, parts[1])
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Cow " + cowID + " deleted successfully"})
	case parts[1] == "profile":
		methodNotAllowed(w)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, uid string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	switch strings.Trim(strings.TrimPrefix(r.URL.Path, "/home"), "/") {
	case "":
		summary, err := s.app.Home(r.Context(), uid)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total_cows":            summary.TotalCows,
			"total_milk_production": summary.TotalMilkProduction,
		})
	case "healthsummary":
		health, err := s.app.HealthSummary(r.Context(), uid)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, health)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summary, err := s.app.Dashboard(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	farmers, err := s.app.ListFarmers(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": farmers})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, adminID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	target := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/delete_user/"), "/")
	if target == "" || strings.Contains(target, "/") {
		writeError(w, http.StatusNotFound, app.ErrUserNotFound.Error())
		return
	}
	if err := s.app.DeleteUser(r.Context(), target); err != nil {
		s.audit(r, "api.delete_user", "fail", "user_id", adminID, "target", target, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "api.delete_user", "success", "user_id", adminID, "target", target)
	writeJSON(w, http.StatusOK, map[string]string{"message": "User " + target + " deleted successfully"})
}

func (s *Server) handlePredictMilk(w http.ResponseWriter, r *http.Request, uid string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req map[string]any
	if !decodeJSON(w, r, &req) {
		return
	}
	yield, err := s.app.PredictMilk(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrModelUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		util.LoggerFromContext(r.Context()).Error("milk prediction failed", "user_id", uid, "err", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predicted_milk_yield": yield, "unit": "litres"})
}

func (s *Server) handlePredictDisease(w http.ResponseWriter, r *http.Request, uid string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req map[string]any
	if !decodeJSON(w, r, &req) {
		return
	}
	label, err := s.app.PredictDisease(r.Context(), req)
	if err != nil {
		var fe *app.FieldError
		switch {
		case errors.As(err, &fe):
			writeError(w, http.StatusBadRequest, fe.Error())
		case errors.Is(err, app.ErrModelUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			util.LoggerFromContext(r.Context()).Error("disease prediction failed", "user_id", uid, "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prediction": label})
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *app.FieldError
	switch {
	case errors.As(err, &fe):
		writeError(w, http.StatusBadRequest, fe.Error())
	case errors.Is(err, app.ErrMissingFields),
		errors.Is(err, app.ErrMissingCredentials),
		errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, app.ErrInvalidCowID),
		errors.Is(err, app.ErrCowExists),
		errors.Is(err, app.ErrNoValidFields),
		errors.Is(err, app.ErrMissingSearch):
		writeError(w, http.StatusBadRequest, err.Error())
	case app.IsReadingError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrPasswordNotSet),
		errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrCowNotFound),
		errors.Is(err, app.ErrNoCows),
		errors.Is(err, app.ErrNoUsers),
		errors.Is(err, app.ErrNoFarmers),
		errors.Is(err, herd.ErrNoReadings):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
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

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
