package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hepavision/fibrostage/internal/auth"
	"github.com/hepavision/fibrostage/internal/classifier"
	"github.com/hepavision/fibrostage/internal/imaging"
	"github.com/hepavision/fibrostage/internal/labels"
	"github.com/hepavision/fibrostage/internal/services"
	"github.com/hepavision/fibrostage/internal/web"
)

var allowedExtensions = map[string]bool{"png": true, "jpg": true, "jpeg": true}

// PredictHandler orchestrates upload validation, preprocessing, inference
// and persistence.
type PredictHandler struct {
	predictions services.PredictionServiceProvider
	engine      classifier.Provider
	labels      *labels.Map
	sessions    *auth.Manager
	render      *web.Renderer
	uploadDir   string
	maxUpload   int64
}

// NewPredictHandler creates a new PredictHandler.
func NewPredictHandler(predictions services.PredictionServiceProvider, engine classifier.Provider, labelMap *labels.Map, sessions *auth.Manager, render *web.Renderer, uploadDir string, maxUpload int64) *PredictHandler {
	return &PredictHandler{
		predictions: predictions,
		engine:      engine,
		labels:      labelMap,
		sessions:    sessions,
		render:      render,
		uploadDir:   uploadDir,
		maxUpload:   maxUpload,
	}
}

type predictPage struct {
	ModelReady bool
	ModelError string
	ClassNames []string
}

// Show renders the upload form, surfacing model readiness and the current
// class-name ordering.
func (h *PredictHandler) Show(w http.ResponseWriter, r *http.Request) {
	classNames := h.labels.Load()
	ready, loadErr := h.engine.Ready()

	h.render.Render(w, "predict.html", web.PageData{
		Title:    "Predict",
		LoggedIn: true,
		Flashes:  h.sessions.Flashes(w, r),
		Data: predictPage{
			ModelReady: ready,
			ModelError: loadErr,
			ClassNames: classNames,
		},
	})
}

// Predict processes an upload: validation chain, preprocessing, inference,
// persistence, then redirect to the report. Every failure flashes a message
// and aborts with no Prediction row.
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	classNames := h.labels.Load()

	if ready, loadErr := h.engine.Ready(); !ready {
		h.abort(w, r, "Model not loaded. Error: "+loadErr)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("image")
	if err != nil || header.Filename == "" {
		h.abort(w, r, "No file selected.")
		return
	}
	defer file.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filepath.Base(header.Filename)), "."))
	if !allowedExtensions[ext] {
		h.abort(w, r, "Only JPG, JPEG, PNG files are allowed.")
		return
	}

	// Never reuse the caller's filename: a generated name prevents both
	// collisions and path traversal.
	uniqueName := strings.ReplaceAll(uuid.New().String(), "-", "") + "." + ext
	savePath := filepath.Join(h.uploadDir, uniqueName)
	if err := saveUpload(file, savePath); err != nil {
		log.Error().Err(err).Str("path", savePath).Msg("Failed to store upload")
		h.abort(w, r, "Prediction failed: could not store the uploaded file.")
		return
	}

	probs, err := h.classifyFile(savePath)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Prediction failed")
		h.abort(w, r, fmt.Sprintf("Prediction failed: %v", err))
		return
	}
	if len(probs) == 0 {
		h.abort(w, r, "Prediction failed: model returned no probabilities.")
		return
	}

	predIdx := argmax(probs)
	stage := labels.NameFor(classNames, predIdx)
	confidence := float64(probs[predIdx])

	probsMap := make(map[string]float64, len(probs))
	for i, p := range probs {
		probsMap[labels.NameFor(classNames, i)] = float64(p)
	}

	pred, err := h.predictions.CreatePrediction(userID, uniqueName, stage, confidence, probsMap)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to store prediction")
		h.abort(w, r, "Prediction failed: could not save the result.")
		return
	}

	log.Info().Int64("user_id", userID).Int64("prediction_id", pred.ID).Str("stage", stage).Msg("Prediction completed")
	h.sessions.AddFlash(w, r, "success", "Prediction completed.")
	http.Redirect(w, r, fmt.Sprintf("/report/%d", pred.ID), http.StatusSeeOther)
}

// classifyFile opens a stored upload, preprocesses it and runs inference.
func (h *PredictHandler) classifyFile(path string) ([]float32, error) {
	img, err := imaging.DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot decode image: %w", err)
	}
	tensor := imaging.Preprocess(img, imaging.DefaultTargetSize)
	return h.engine.Classify(tensor)
}

func (h *PredictHandler) abort(w http.ResponseWriter, r *http.Request, message string) {
	h.sessions.AddFlash(w, r, "error", message)
	http.Redirect(w, r, "/predict", http.StatusSeeOther)
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func argmax(probs []float32) int {
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best
}
