package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hepavision/fibrostage/internal/auth"
	"github.com/hepavision/fibrostage/internal/services"
	"github.com/hepavision/fibrostage/internal/web"
)

// AuthHandler handles registration, login and logout.
type AuthHandler struct {
	users    services.UserServiceProvider
	sessions *auth.Manager
	render   *web.Renderer
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users services.UserServiceProvider, sessions *auth.Manager, render *web.Renderer) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, render: render}
}

// Index sends authenticated callers to the home view, everyone else to login.
func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.CurrentUserID(r); ok {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// ShowLogin renders the login form.
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, "login.html", web.PageData{
		Title:   "Login",
		Flashes: h.sessions.Flashes(w, r),
	})
}

// Login processes a login attempt.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	user, err := h.users.AuthenticateUser(email, password)
	if err != nil {
		if !errors.Is(err, services.ErrInvalidCredentials) {
			log.Error().Err(err).Msg("Login query failed")
		}
		// One generic message for unknown email and wrong password alike.
		h.sessions.AddFlash(w, r, "error", "Invalid email or password.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := h.sessions.SignIn(w, r, user.ID); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to establish session")
		h.sessions.AddFlash(w, r, "error", "Login failed, please try again.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	h.sessions.AddFlash(w, r, "success", "Logged in successfully.")
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

// ShowRegister renders the registration form.
func (h *AuthHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, "register.html", web.PageData{
		Title:   "Register",
		Flashes: h.sessions.Flashes(w, r),
	})
}

// Register processes a registration attempt. A new account is never
// auto-logged-in; success redirects to the login form.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	fullName := strings.TrimSpace(r.FormValue("full_name"))
	email := r.FormValue("email")
	password := r.FormValue("password")
	confirm := r.FormValue("confirm")

	if fullName == "" || strings.TrimSpace(email) == "" || password == "" {
		h.sessions.AddFlash(w, r, "error", "Please fill all fields.")
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}
	if password != confirm {
		h.sessions.AddFlash(w, r, "error", "Passwords do not match.")
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}

	if _, err := h.users.RegisterUser(fullName, email, password); err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			h.sessions.AddFlash(w, r, "error", "Email already registered. Please login.")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		log.Error().Err(err).Msg("Failed to register user")
		h.sessions.AddFlash(w, r, "error", "Registration failed, please try again.")
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}

	h.sessions.AddFlash(w, r, "success", "Account created successfully. Please login.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Logout clears the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(w, r); err != nil {
		log.Warn().Err(err).Msg("Failed to clear session")
	}
	h.sessions.AddFlash(w, r, "success", "Logged out.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
