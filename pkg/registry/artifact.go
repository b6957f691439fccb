package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/riskwise-ai/platform/pkg/ml/linear"
)

// Scorer is the opaque classifier capability. A feature row is consumed in
// frozen feature order; nil entries are imputed inside the scorer, so a
// prediction is always produced even under partial information.
type Scorer interface {
	PredictProbabilities(row []interface{}) ([]float64, error)
}

// Artifact is the persisted scorer format: a calibrated multinomial model
// together with the preprocessing statistics frozen at training time.
type Artifact struct {
	Disease      string   `json:"disease"`
	ModelVersion string   `json:"model_version"`
	Classes      []string `json:"classes"`
	FeatureNames []string `json:"feature_names"`
	Imputation   struct {
		Medians    map[string]float64 `json:"medians"`
		Categories map[string]string  `json:"categories,omitempty"`
	} `json:"imputation"`
	Encodings map[string]map[string]float64 `json:"encodings,omitempty"`
	Scaler    struct {
		Means map[string]float64 `json:"means,omitempty"`
		Stds  map[string]float64 `json:"stds,omitempty"`
	} `json:"scaler"`
	Weights linear.Weights `json:"weights"`
}

func (a *Artifact) validate() error {
	if len(a.Classes) == 0 {
		return fmt.Errorf("artifact declares no classes")
	}
	if len(a.FeatureNames) == 0 {
		return fmt.Errorf("artifact declares no feature names")
	}
	if len(a.Weights.Biases) != len(a.Classes) {
		return fmt.Errorf("artifact has %d biases for %d classes", len(a.Weights.Biases), len(a.Classes))
	}
	if len(a.Weights.Coefficients) != len(a.Classes) {
		return fmt.Errorf("artifact has %d coefficient rows for %d classes", len(a.Weights.Coefficients), len(a.Classes))
	}
	for c, coeffs := range a.Weights.Coefficients {
		if len(coeffs) != len(a.FeatureNames) {
			return fmt.Errorf("class %d has %d coefficients for %d features", c, len(coeffs), len(a.FeatureNames))
		}
	}
	return nil
}

// LoadArtifact reads and validates a scorer artifact from disk.
func LoadArtifact(path string) (*Artifact, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var artifact Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return nil, fmt.Errorf("parse scorer artifact: %w", err)
	}
	if err := artifact.validate(); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// linearScorer scores a feature row with the artifact's frozen
// preprocessing: categorical encoding, median imputation, standardization,
// then the multinomial model.
type linearScorer struct {
	artifact *Artifact
}

func NewLinearScorer(artifact *Artifact) Scorer {
	return &linearScorer{artifact: artifact}
}

func (s *linearScorer) PredictProbabilities(row []interface{}) ([]float64, error) {
	a := s.artifact
	if len(row) != len(a.FeatureNames) {
		return nil, fmt.Errorf("feature row has %d values, scorer expects %d", len(row), len(a.FeatureNames))
	}
	sample := make([]float64, len(row))
	for i, name := range a.FeatureNames {
		if enc, ok := a.Encodings[name]; ok {
			sample[i] = encodeCategory(a, enc, name, row[i])
			continue
		}
		value, ok := floatValue(row[i])
		if !ok {
			value = a.Imputation.Medians[name]
		}
		if std, ok := a.Scaler.Stds[name]; ok && std > 0 {
			value = (value - a.Scaler.Means[name]) / std
		}
		sample[i] = value
	}
	return linear.PredictProba(a.Weights, sample), nil
}

func encodeCategory(a *Artifact, enc map[string]float64, name string, v interface{}) float64 {
	label, _ := v.(string)
	if label == "" {
		label = a.Imputation.Categories[name]
	}
	if code, ok := enc[label]; ok {
		return code
	}
	// Unknown category falls back to the most-frequent training label.
	if code, ok := enc[a.Imputation.Categories[name]]; ok {
		return code
	}
	return 0
}

func floatValue(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
