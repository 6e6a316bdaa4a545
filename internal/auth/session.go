// Package auth manages browser sessions and access gating.
package auth

import (
	"context"
	"encoding/gob"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"
)

const (
	sessionName = "fibrostage_session"
	userIDKey   = "user_id"
)

// Flash is a transient user-facing message shown on the next rendered page.
type Flash struct {
	Kind    string // "error" or "success"
	Message string
}

func init() {
	gob.Register(Flash{})
}

// UserContextKey is the context key for the authenticated user's ID.
type contextKey string

const UserContextKey = contextKey("userID")

// Manager wraps the cookie session store.
type Manager struct {
	store *sessions.CookieStore
}

// NewManager creates a session manager backed by an encrypted cookie store.
func NewManager(secret string, secureCookies bool) *Manager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{store: store}
}

// SignIn binds the session to a user ID.
func (m *Manager) SignIn(w http.ResponseWriter, r *http.Request, userID int64) error {
	session, _ := m.store.Get(r, sessionName)
	session.Values[userIDKey] = userID
	return session.Save(r, w)
}

// SignOut clears the session's user binding unconditionally. The cookie
// itself survives so the logout flash can still be delivered.
func (m *Manager) SignOut(w http.ResponseWriter, r *http.Request) error {
	session, _ := m.store.Get(r, sessionName)
	delete(session.Values, userIDKey)
	return session.Save(r, w)
}

// CurrentUserID returns the user ID bound to the request's session, if any.
func (m *Manager) CurrentUserID(r *http.Request) (int64, bool) {
	session, err := m.store.Get(r, sessionName)
	if err != nil {
		// A stale or tampered cookie is treated as no session.
		return 0, false
	}
	id, ok := session.Values[userIDKey].(int64)
	return id, ok
}

// AddFlash queues a transient message for the next rendered page.
func (m *Manager) AddFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	session, _ := m.store.Get(r, sessionName)
	session.AddFlash(Flash{Kind: kind, Message: message})
	if err := session.Save(r, w); err != nil {
		log.Warn().Err(err).Msg("Failed to save flash message")
	}
}

// Flashes drains and returns the queued messages.
func (m *Manager) Flashes(w http.ResponseWriter, r *http.Request) []Flash {
	session, err := m.store.Get(r, sessionName)
	if err != nil {
		return nil
	}
	raw := session.Flashes()
	if len(raw) > 0 {
		if err := session.Save(r, w); err != nil {
			log.Warn().Err(err).Msg("Failed to clear flash messages")
		}
	}
	flashes := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(Flash); ok {
			flashes = append(flashes, f)
		}
	}
	return flashes
}

// RequireSession gates a route: unauthenticated callers are redirected to
// the login page before any side effect runs.
func (m *Manager) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := m.CurrentUserID(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		ctx := context.WithValue(r.Context(), UserContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RedirectAuthenticated sends already-authenticated callers straight to the
// home view. Used on the login and register routes.
func (m *Manager) RedirectAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.CurrentUserID(r); ok {
			http.Redirect(w, r, "/home", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserID extracts the authenticated user's ID from a gated request context.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserContextKey).(int64)
	return id, ok
}
