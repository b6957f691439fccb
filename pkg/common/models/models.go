package models

import (
	"fmt"
	"time"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // dataset.labeled, prediction.completed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// PredictionRequest carries one survey-style measurement payload for scoring.
// Optional fields are pointers; nil means the measurement was not collected.
type PredictionRequest struct {
	RequestID string `json:"request_id,omitempty"`

	AgeYears   float64 `json:"age_years"`
	SexAtBirth string  `json:"sex_at_birth"`

	HeightCm             *float64 `json:"height_cm,omitempty"`
	WeightKg             *float64 `json:"weight_kg,omitempty"`
	BMI                  *float64 `json:"bmi,omitempty"`
	WaistCircumferenceCm float64  `json:"waist_circumference_cm"`

	SystolicBP  float64 `json:"systolic_bp_mmHg"`
	DiastolicBP float64 `json:"diastolic_bp_mmHg"`

	FastingGlucose   float64  `json:"fasting_glucose_mg_dL"`
	Triglycerides    float64  `json:"triglycerides_mg_dL"`
	HDL              float64  `json:"hdl_mg_dL"`
	TotalCholesterol *float64 `json:"total_cholesterol_mg_dL,omitempty"`
	HbA1cPercent     *float64 `json:"hba1c_percent,omitempty"`

	ALT        *float64 `json:"alt_U_L,omitempty"`
	Creatinine *float64 `json:"creatinine_mg_dL,omitempty"`

	RaceEthnicity   string `json:"race_ethnicity,omitempty"`
	PregnancyStatus string `json:"pregnancy_status,omitempty"`

	TgToHDLRatio *float64 `json:"tg_to_hdl_ratio,omitempty"`
	NonHDLChol   *float64 `json:"non_hdl_chol_mg_dL,omitempty"`
}

type rangeCheck struct {
	name  string
	value float64
	min   float64
	max   float64
}

// Validate rejects structurally invalid requests at the boundary. Missing
// optional measurements are fine; values outside physiological ranges are not.
func (r *PredictionRequest) Validate() error {
	checks := []rangeCheck{
		{"age_years", r.AgeYears, 0, 120},
		{"waist_circumference_cm", r.WaistCircumferenceCm, 30, 200},
		{"systolic_bp_mmHg", r.SystolicBP, 60, 260},
		{"diastolic_bp_mmHg", r.DiastolicBP, 30, 160},
		{"fasting_glucose_mg_dL", r.FastingGlucose, 40, 500},
		{"triglycerides_mg_dL", r.Triglycerides, 20, 2000},
		{"hdl_mg_dL", r.HDL, 5, 200},
	}
	optional := map[*float64]rangeCheck{
		r.HeightCm:         {name: "height_cm", min: 50, max: 250},
		r.WeightKg:         {name: "weight_kg", min: 20, max: 400},
		r.BMI:              {name: "bmi", min: 10, max: 80},
		r.TotalCholesterol: {name: "total_cholesterol_mg_dL", min: 50, max: 1000},
		r.HbA1cPercent:     {name: "hba1c_percent", min: 3, max: 20},
		r.ALT:              {name: "alt_U_L", min: 0, max: 2000},
		r.Creatinine:       {name: "creatinine_mg_dL", min: 0.1, max: 20},
	}
	for ptr, check := range optional {
		if ptr != nil {
			checks = append(checks, rangeCheck{check.name, *ptr, check.min, check.max})
		}
	}
	for _, c := range checks {
		if c.value < c.min || c.value > c.max {
			return fmt.Errorf("%s out of range: %v not in [%v, %v]", c.name, c.value, c.min, c.max)
		}
	}
	switch r.SexAtBirth {
	case "male", "female", "unknown":
	case "":
		return fmt.Errorf("sex_at_birth is required")
	default:
		return fmt.Errorf("sex_at_birth invalid: %q", r.SexAtBirth)
	}
	return nil
}

// Payload flattens the request into a keyed record using the canonical
// column names the training pipeline produces. Categorical fields default
// to "unknown" so a missing category is never distinguishable from a
// collected "unknown" answer.
func (r *PredictionRequest) Payload() map[string]interface{} {
	payload := map[string]interface{}{
		"age_years":              r.AgeYears,
		"sex_at_birth":           r.SexAtBirth,
		"waist_circumference_cm": r.WaistCircumferenceCm,
		"systolic_bp_mmHg":       r.SystolicBP,
		"diastolic_bp_mmHg":      r.DiastolicBP,
		"fasting_glucose_mg_dL":  r.FastingGlucose,
		"triglycerides_mg_dL":    r.Triglycerides,
		"hdl_mg_dL":              r.HDL,
		"race_ethnicity":         orUnknown(r.RaceEthnicity),
		"pregnancy_status":       orUnknown(r.PregnancyStatus),
	}
	putFloat(payload, "height_cm", r.HeightCm)
	putFloat(payload, "weight_kg", r.WeightKg)
	putFloat(payload, "bmi", r.BMI)
	putFloat(payload, "total_cholesterol_mg_dL", r.TotalCholesterol)
	putFloat(payload, "hba1c_percent", r.HbA1cPercent)
	putFloat(payload, "alt_U_L", r.ALT)
	putFloat(payload, "creatinine_mg_dL", r.Creatinine)
	putFloat(payload, "tg_to_hdl_ratio", r.TgToHDLRatio)
	putFloat(payload, "non_hdl_chol_mg_dL", r.NonHDLChol)
	return payload
}

func putFloat(payload map[string]interface{}, key string, value *float64) {
	if value != nil {
		payload[key] = *value
	}
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// Probabilities over the three outcome classes, in class order.
type Probabilities struct {
	PNormal      float64 `json:"p_normal"`
	PPrediabetes float64 `json:"p_prediabetes"`
	PDiabetes    float64 `json:"p_diabetes"`
}

type PredictionResponse struct {
	RunID              string        `json:"run_id,omitempty"`
	RequestID          string        `json:"request_id,omitempty"`
	Disease            string        `json:"disease"`
	PredictedLabel     string        `json:"predicted_label"`
	Probabilities      Probabilities `json:"probabilities"`
	SuggestedNextSteps []string      `json:"suggested_next_steps"`
	Notes              []string      `json:"notes"`
	ModelVersion       string        `json:"model_version"`
	Latency            time.Duration `json:"-"`
}
