package handlers

import (
	"net/http"

	"github.com/hepavision/fibrostage/internal/auth"
	"github.com/hepavision/fibrostage/internal/web"
)

// PageHandler serves the static landing and informational pages.
type PageHandler struct {
	sessions *auth.Manager
	render   *web.Renderer
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(sessions *auth.Manager, render *web.Renderer) *PageHandler {
	return &PageHandler{sessions: sessions, render: render}
}

// Home renders the landing page for authenticated users.
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, "home.html", web.PageData{
		Title:    "Home",
		LoggedIn: true,
		Flashes:  h.sessions.Flashes(w, r),
	})
}

// About renders the informational page. Open to everyone.
func (h *PageHandler) About(w http.ResponseWriter, r *http.Request) {
	_, loggedIn := h.sessions.CurrentUserID(r)
	h.render.Render(w, "about.html", web.PageData{
		Title:    "About",
		LoggedIn: loggedIn,
		Flashes:  h.sessions.Flashes(w, r),
	})
}
