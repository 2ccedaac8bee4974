// Package http exposes the listing and auth services as a JSON API for the
// mobile front-end.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/atinyakov/swyppy/internal/middleware"
	"github.com/atinyakov/swyppy/internal/models"
	"github.com/atinyakov/swyppy/internal/service"
)

// AuthService defines the authentication operations the handlers need.
type AuthService interface {
	// SignUp registers a user and returns the created profile.
	SignUp(ctx context.Context, username, email, password, confirm string) (service.SignInResult, error)
	// SignIn verifies credentials and returns the profile.
	SignIn(ctx context.Context, email, password string, remember bool) (service.SignInResult, error)
}

// AuthHandler handles registration and login and issues API tokens.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
	// Secret signs API tokens.
	Secret []byte
	// TTL is how long issued tokens stay valid.
	TTL time.Duration
}

// RegisterRequest is the JSON payload of POST /api/register.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// LoginRequest is the JSON payload of POST /api/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	service.SignInResult
	Token string       `json:"token"`
	Route models.Route `json:"route"`
}

// Register handles POST /api/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	who, err := h.AuthService.SignUp(r.Context(), req.Username, req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, who)
}

// Login handles POST /api/login. The response route tells the client
// where a user of that role lands.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	// the API client remembers its own session
	who, err := h.AuthService.SignIn(r.Context(), req.Email, req.Password, false)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, who)
}

// Logout handles POST /api/logout. Tokens are stateless, so this only
// tells the client where to go after dropping its token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]models.Route{"route": models.RouteLogin})
}

func (h *AuthHandler) respond(w http.ResponseWriter, status int, who service.SignInResult) {
	token, err := middleware.IssueToken(h.Secret, who.UID, who.Role, h.TTL, time.Now())
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, AuthResponse{
		SignInResult: who,
		Token:        token,
		Route:        models.RouteForRole(who.Role),
	})
}
