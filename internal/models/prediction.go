package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Prediction represents one completed inference on an uploaded image.
type Prediction struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	ImageFilename string    `json:"imageFilename"` // Generated name, not the user-supplied one
	Stage         string    `json:"stage"`
	Confidence    float64   `json:"confidence"`
	ProbsJSON     string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// StageProbability is one entry of a decoded probability distribution.
type StageProbability struct {
	Label       string
	Probability float64
}

// Probabilities decodes the stored class->probability distribution.
func (p *Prediction) Probabilities() (map[string]float64, error) {
	probs := make(map[string]float64)
	if err := json.Unmarshal([]byte(p.ProbsJSON), &probs); err != nil {
		return nil, err
	}
	return probs, nil
}

// SortedProbabilities returns the distribution ordered by probability,
// highest first. Ties fall back to label order so rendering is stable
// across requests.
func (p *Prediction) SortedProbabilities() ([]StageProbability, error) {
	probs, err := p.Probabilities()
	if err != nil {
		return nil, err
	}

	sorted := make([]StageProbability, 0, len(probs))
	for label, prob := range probs {
		sorted = append(sorted, StageProbability{Label: label, Probability: prob})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Probability != sorted[j].Probability {
			return sorted[i].Probability > sorted[j].Probability
		}
		return sorted[i].Label < sorted[j].Label
	})
	return sorted, nil
}
