// Package web renders the server-side HTML views.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hepavision/fibrostage/internal/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData is the envelope handed to every template.
type PageData struct {
	Title    string
	LoggedIn bool
	Flashes  []auth.Flash
	Data     any
}

// Renderer holds the parsed page templates. Each page is parsed together
// with the base layout so pages can only reach their own blocks.
type Renderer struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"percent": func(p float64) string {
		return fmt.Sprintf("%.2f%%", p*100)
	},
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	pageNames := []string{
		"login.html", "register.html", "home.html", "about.html",
		"predict.html", "history.html", "report.html",
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New("base.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render writes a page to the response. Template failures surface as a
// plain 500; there is nothing useful to tell the user.
func (r *Renderer) Render(w http.ResponseWriter, page string, data PageData) {
	tmpl, ok := r.pages[page]
	if !ok {
		log.Error().Str("page", page).Msg("Unknown template requested")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Error().Err(err).Str("page", page).Msg("Failed to render template")
	}
}
