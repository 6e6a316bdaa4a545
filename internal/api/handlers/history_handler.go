package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/hepavision/fibrostage/internal/auth"
	"github.com/hepavision/fibrostage/internal/models"
	"github.com/hepavision/fibrostage/internal/services"
	"github.com/hepavision/fibrostage/internal/web"
)

// HistoryHandler serves the read-only prediction views.
type HistoryHandler struct {
	predictions services.PredictionServiceProvider
	sessions    *auth.Manager
	render      *web.Renderer
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(predictions services.PredictionServiceProvider, sessions *auth.Manager, render *web.Renderer) *HistoryHandler {
	return &HistoryHandler{predictions: predictions, sessions: sessions, render: render}
}

type historyPage struct {
	Predictions []models.Prediction
}

type reportPage struct {
	Prediction    models.Prediction
	Probabilities []models.StageProbability
}

// History lists the caller's predictions, most recent first.
func (h *HistoryHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	preds, err := h.predictions.ListPredictionsByUser(userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to list predictions")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render.Render(w, "history.html", web.PageData{
		Title:    "History",
		LoggedIn: true,
		Flashes:  h.sessions.Flashes(w, r),
		Data:     historyPage{Predictions: preds},
	})
}

// Report shows one prediction's detail. Unknown IDs are a 404; records
// owned by another user are a 403.
func (h *HistoryHandler) Report(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	pred, err := h.predictions.GetPredictionByID(id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		log.Error().Err(err).Int64("prediction_id", id).Msg("Failed to load prediction")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if pred.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	probs, err := pred.SortedProbabilities()
	if err != nil {
		log.Error().Err(err).Int64("prediction_id", id).Msg("Stored probabilities are unreadable")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render.Render(w, "report.html", web.PageData{
		Title:    "Report",
		LoggedIn: true,
		Flashes:  h.sessions.Flashes(w, r),
		Data:     reportPage{Prediction: pred, Probabilities: probs},
	})
}
