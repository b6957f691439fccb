package serving

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/riskwise-ai/platform/pkg/common/logger"
	"github.com/riskwise-ai/platform/pkg/common/models"
	"github.com/riskwise-ai/platform/pkg/features"
	"github.com/riskwise-ai/platform/pkg/labels"
	"github.com/riskwise-ai/platform/pkg/registry"
	"github.com/riskwise-ai/platform/pkg/storage"
)

// EventPublisher is the optional event-bus collaborator.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Service orchestrates one inference: derive features on the payload, build
// the frozen-order feature row, score, attach guidance. The registry is
// immutable after construction, so requests share it without locking.
type Service struct {
	registry  *registry.Registry
	repo      *Repository
	cache     *storage.RunCache
	publisher EventPublisher
}

func NewService(reg *registry.Registry, repo *Repository, cache *storage.RunCache, publisher EventPublisher) *Service {
	return &Service{registry: reg, repo: repo, cache: cache, publisher: publisher}
}

func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Predict scores one request without persistence.
func (s *Service) Predict(ctx context.Context, disease string, req *models.PredictionRequest) (models.PredictionResponse, error) {
	resp, _, err := s.predict(ctx, disease, req)
	return resp, err
}

// PredictAndStore scores one request, then persists and caches the run
// best-effort: a persistence failure is logged and never fails the
// already-computed prediction.
func (s *Service) PredictAndStore(ctx context.Context, disease string, req *models.PredictionRequest, userID string) (models.PredictionResponse, error) {
	resp, payload, err := s.predict(ctx, disease, req)
	if err != nil {
		return resp, err
	}

	if s.repo == nil {
		return resp, nil
	}
	if userID != "" {
		if _, err := s.repo.GetOrCreateUser(ctx, userID); err != nil {
			logger.Log.WithError(err).WithField("user_id", userID).Error("Failed to upsert user")
		}
	}
	runID, err := s.repo.RecordRun(ctx, userID, resp, payload)
	if err != nil {
		logger.Log.WithError(err).WithField("disease", disease).Error("Failed to persist prediction run")
		return resp, nil
	}
	resp.RunID = runID

	if s.cache != nil {
		if err := s.cache.Put(ctx, runID, resp); err != nil {
			logger.Log.WithError(err).WithField("run_id", runID).Warn("Failed to cache prediction run")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishEvent(ctx, "prediction.completed", "serving-service", map[string]interface{}{
			"run_id":          runID,
			"disease":         disease,
			"predicted_label": resp.PredictedLabel,
			"p_diabetes":      resp.Probabilities.PDiabetes,
		}); err != nil {
			logger.Log.WithError(err).Warn("Failed to publish prediction event")
		}
	}
	return resp, nil
}

func (s *Service) predict(ctx context.Context, disease string, req *models.PredictionRequest) (models.PredictionResponse, map[string]interface{}, error) {
	start := time.Now()

	bundle, err := s.registry.Get(disease)
	if err != nil {
		return models.PredictionResponse{}, nil, err
	}

	payload := req.Payload()
	features.DeriveRow(payload)

	proba, err := bundle.PredictProbabilities(payload)
	if err != nil {
		return models.PredictionResponse{}, nil, fmt.Errorf("scoring failed for %s: %w", disease, err)
	}
	if len(proba) != 3 {
		return models.PredictionResponse{}, nil, fmt.Errorf("scorer for %s returned %d probabilities, want 3", disease, len(proba))
	}

	probs := models.Probabilities{
		PNormal:      proba[labels.Normal],
		PPrediabetes: proba[labels.Prediabetes],
		PDiabetes:    proba[labels.Diabetes],
	}
	predicted := labels.Name(argmax(proba))
	latency := time.Since(start)

	resp := models.PredictionResponse{
		RequestID:          req.RequestID,
		Disease:            disease,
		PredictedLabel:     predicted,
		Probabilities:      probs,
		SuggestedNextSteps: nextSteps(probs, req.HbA1cPercent),
		Notes:              buildNotes(disease, bundle),
		ModelVersion:       bundle.ModelVersion,
		Latency:            latency,
	}

	logger.Log.WithFields(map[string]interface{}{
		"request_id":      req.RequestID,
		"disease":         disease,
		"predicted_label": predicted,
		"p_diabetes":      probs.PDiabetes,
		"latency_ms":      latency.Milliseconds(),
	}).Info("Prediction completed")

	return resp, payload, nil
}

// nextSteps keys rule-based guidance off the predicted probabilities, with
// an HbA1c trend note appended independently of the probability branch.
func nextSteps(probs models.Probabilities, hba1c *float64) []string {
	var steps []string
	switch {
	case probs.PDiabetes >= 0.5:
		steps = append(steps,
			"Consider confirming with a clinician: repeat fasting glucose and/or HbA1c.",
			"Discuss lifestyle changes (nutrition, activity) and medication options if indicated.")
	case probs.PPrediabetes >= 0.5:
		steps = append(steps,
			"Consider follow-up screening (HbA1c and fasting glucose) within 3-6 months.",
			"Lifestyle changes: increase activity, reduce refined carbs, aim for waist/BMI improvement.")
	default:
		steps = append(steps, "Maintain healthy lifestyle habits and routine screening intervals.")
	}
	if hba1c != nil && *hba1c >= 5.7 {
		steps = append(steps, "Your HbA1c is in a higher range; consider monitoring trends over time.")
	}
	return steps
}

func buildNotes(disease string, bundle *registry.Bundle) []string {
	notes := []string{
		fmt.Sprintf("Prototype model for %s (%s, strict fasting cohort).", disease, bundle.ModelVersion),
		"This output is for research/education; not a medical diagnosis.",
	}
	if len(bundle.TopFeatures) > 0 {
		top := bundle.TopFeatures
		if len(top) > 5 {
			top = top[:5]
		}
		notes = append(notes, "Global top drivers (dataset-level): "+strings.Join(top, ", "))
	}
	return notes
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// GetRun reads a stored run, preferring the cache.
func (s *Service) GetRun(ctx context.Context, runID string) (*PredictionRun, *models.PredictionResponse, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, runID)
		if err != nil {
			logger.Log.WithError(err).WithField("run_id", runID).Warn("Run cache read failed")
		} else if cached != nil {
			return nil, cached, nil
		}
	}
	if s.repo == nil {
		return nil, nil, ErrRunNotFound
	}
	run, err := s.repo.Get(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, nil, nil
}
