package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hepavision/fibrostage/internal/models"
)

// PredictionServiceProvider defines the interface for prediction services.
type PredictionServiceProvider interface {
	CreatePrediction(userID int64, imageFilename, stage string, confidence float64, probs map[string]float64) (models.Prediction, error)
	ListPredictionsByUser(userID int64) ([]models.Prediction, error)
	GetPredictionByID(id int64) (models.Prediction, error)
}

// PredictionService provides business logic for prediction records.
type PredictionService struct {
	db *sql.DB
}

// NewPredictionService creates a new PredictionService.
func NewPredictionService(db *sql.DB) *PredictionService {
	return &PredictionService{db: db}
}

// CreatePrediction stores one completed inference as a single-row commit.
func (s *PredictionService) CreatePrediction(userID int64, imageFilename, stage string, confidence float64, probs map[string]float64) (models.Prediction, error) {
	probsJSON, err := json.Marshal(probs)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("failed to encode probabilities: %w", err)
	}

	pred := models.Prediction{
		UserID:        userID,
		ImageFilename: imageFilename,
		Stage:         stage,
		Confidence:    confidence,
		ProbsJSON:     string(probsJSON),
		CreatedAt:     time.Now().UTC(),
	}

	stmt, err := s.db.Prepare("INSERT INTO predictions(user_id, image_filename, stage, confidence, probs_json, created_at) VALUES(?, ?, ?, ?, ?, ?)")
	if err != nil {
		return models.Prediction{}, err
	}
	defer stmt.Close()

	res, err := stmt.Exec(pred.UserID, pred.ImageFilename, pred.Stage, pred.Confidence, pred.ProbsJSON, pred.CreatedAt)
	if err != nil {
		return models.Prediction{}, err
	}

	pred.ID, err = res.LastInsertId()
	if err != nil {
		return models.Prediction{}, err
	}
	return pred, nil
}

// ListPredictionsByUser returns a user's predictions, most recent first.
func (s *PredictionService) ListPredictionsByUser(userID int64) ([]models.Prediction, error) {
	rows, err := s.db.Query(
		"SELECT id, user_id, image_filename, stage, confidence, probs_json, created_at FROM predictions WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var preds []models.Prediction
	for rows.Next() {
		var p models.Prediction
		if err := rows.Scan(&p.ID, &p.UserID, &p.ImageFilename, &p.Stage, &p.Confidence, &p.ProbsJSON, &p.CreatedAt); err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

// GetPredictionByID retrieves a single prediction by its ID.
func (s *PredictionService) GetPredictionByID(id int64) (models.Prediction, error) {
	var p models.Prediction
	row := s.db.QueryRow(
		"SELECT id, user_id, image_filename, stage, confidence, probs_json, created_at FROM predictions WHERE id = ?",
		id,
	)
	err := row.Scan(&p.ID, &p.UserID, &p.ImageFilename, &p.Stage, &p.Confidence, &p.ProbsJSON, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Prediction{}, ErrNotFound
		}
		return models.Prediction{}, err
	}
	return p, nil
}
