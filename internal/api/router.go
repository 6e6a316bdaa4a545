package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hepavision/fibrostage/internal/api/handlers"
	"github.com/hepavision/fibrostage/internal/auth"
	"github.com/hepavision/fibrostage/internal/classifier"
	"github.com/hepavision/fibrostage/internal/labels"
	"github.com/hepavision/fibrostage/internal/services"
	"github.com/hepavision/fibrostage/internal/web"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	DB          *sql.DB
	Users       services.UserServiceProvider
	Predictions services.PredictionServiceProvider
	Engine      classifier.Provider
	Labels      *labels.Map
	Sessions    *auth.Manager
	Renderer    *web.Renderer
	UploadDir   string
	MaxUpload   int64
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(deps.Users, deps.Sessions, deps.Renderer)
	pageHandler := handlers.NewPageHandler(deps.Sessions, deps.Renderer)
	predictHandler := handlers.NewPredictHandler(deps.Predictions, deps.Engine, deps.Labels, deps.Sessions, deps.Renderer, deps.UploadDir, deps.MaxUpload)
	historyHandler := handlers.NewHistoryHandler(deps.Predictions, deps.Sessions, deps.Renderer)
	statusHandler := handlers.NewStatusHandler(deps.DB, deps.Engine, deps.Labels)

	// Open routes
	r.Get("/", authHandler.Index)
	r.Get("/about", pageHandler.About)
	r.Get("/status", statusHandler.Status)

	// Login and register bounce already-authenticated callers to home
	r.Group(func(r chi.Router) {
		r.Use(deps.Sessions.RedirectAuthenticated)
		r.Get("/login", authHandler.ShowLogin)
		r.Post("/login", authHandler.Login)
		r.Get("/register", authHandler.ShowRegister)
		r.Post("/register", authHandler.Register)
	})

	// Session-gated routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Sessions.RequireSession)
		r.Get("/home", pageHandler.Home)
		r.Get("/logout", authHandler.Logout)
		r.Get("/predict", predictHandler.Show)
		r.Post("/predict", predictHandler.Predict)
		r.Get("/history", historyHandler.History)
		r.Get("/report/{id}", historyHandler.Report)

		// Stored images are referenced only by generated name
		uploads := http.StripPrefix("/uploads/", http.FileServer(http.Dir(deps.UploadDir)))
		r.Get("/uploads/*", uploads.ServeHTTP)
	})

	return r
}
