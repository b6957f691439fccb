package registry

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/riskwise-ai/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func testArtifact() *Artifact {
	a := &Artifact{
		Disease:      "t2d",
		ModelVersion: "nhanes_2017_2018_v1",
		Classes:      []string{"normal", "prediabetes", "diabetes"},
		FeatureNames: []string{"fasting_glucose_mg_dL", "age_years", "sex_at_birth"},
		Encodings: map[string]map[string]float64{
			"sex_at_birth": {"male": 0, "female": 1, "unknown": 0.5},
		},
	}
	a.Imputation.Medians = map[string]float64{"fasting_glucose_mg_dL": 100, "age_years": 50}
	a.Imputation.Categories = map[string]string{"sex_at_birth": "female"}
	a.Scaler.Means = map[string]float64{"fasting_glucose_mg_dL": 100, "age_years": 50}
	a.Scaler.Stds = map[string]float64{"fasting_glucose_mg_dL": 25, "age_years": 18}
	a.Weights.Biases = []float64{0.1, 0.0, -0.1}
	a.Weights.Coefficients = [][]float64{
		{-1.2, -0.1, 0.0},
		{0.3, 0.1, 0.0},
		{0.9, 0.2, 0.1},
	}
	return a
}

func testBundle() *Bundle {
	a := testArtifact()
	return &Bundle{
		Disease:      a.Disease,
		ModelVersion: a.ModelVersion,
		FeatureList:  a.FeatureNames,
		Scorer:       NewLinearScorer(a),
	}
}

func TestBuildFeatureRowIsOrderDeterministic(t *testing.T) {
	bundle := testBundle()
	payload := map[string]interface{}{
		"sex_at_birth":          "female",
		"age_years":             44.0,
		"fasting_glucose_mg_dL": 104.0,
		"not_a_feature":         "ignored",
	}
	row := bundle.BuildFeatureRow(payload)
	if len(row) != 3 {
		t.Fatalf("expected 3 values, got %d", len(row))
	}
	if row[0] != 104.0 || row[1] != 44.0 || row[2] != "female" {
		t.Fatalf("row not in frozen order: %v", row)
	}

	// The same payload built twice must be identical, whatever the map
	// iteration order did.
	again := bundle.BuildFeatureRow(payload)
	for i := range row {
		if row[i] != again[i] {
			t.Fatalf("non-deterministic row at %d: %v vs %v", i, row[i], again[i])
		}
	}
}

func TestBuildFeatureRowFillsMissingWithNil(t *testing.T) {
	bundle := testBundle()
	row := bundle.BuildFeatureRow(map[string]interface{}{"age_years": 44.0})
	if row[0] != nil || row[2] != nil {
		t.Fatalf("missing features should be nil, got %v", row)
	}
}

func TestScorerImputesNilValues(t *testing.T) {
	bundle := testBundle()
	probs, err := bundle.PredictProbabilities(map[string]interface{}{})
	if err != nil {
		t.Fatalf("empty payload should still score: %v", err)
	}
	if len(probs) != 3 {
		t.Fatalf("expected 3 probabilities, got %d", len(probs))
	}
	sum := probs[0] + probs[1] + probs[2]
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("probabilities sum to %v", sum)
	}
}

func TestScorerHigherGlucoseRaisesDiabetesProbability(t *testing.T) {
	bundle := testBundle()
	low, err := bundle.PredictProbabilities(map[string]interface{}{"fasting_glucose_mg_dL": 85.0, "age_years": 50.0, "sex_at_birth": "male"})
	if err != nil {
		t.Fatal(err)
	}
	high, err := bundle.PredictProbabilities(map[string]interface{}{"fasting_glucose_mg_dL": 160.0, "age_years": 50.0, "sex_at_birth": "male"})
	if err != nil {
		t.Fatal(err)
	}
	if high[2] <= low[2] {
		t.Fatalf("diabetes probability should rise with glucose: low=%v high=%v", low[2], high[2])
	}
}

func TestScorerUnknownCategoryFallsBack(t *testing.T) {
	bundle := testBundle()
	probs, err := bundle.PredictProbabilities(map[string]interface{}{
		"fasting_glucose_mg_dL": 100.0,
		"age_years":             50.0,
		"sex_at_birth":          "something_else",
	})
	if err != nil {
		t.Fatalf("unknown category should fall back, not error: %v", err)
	}
	baseline, _ := bundle.PredictProbabilities(map[string]interface{}{
		"fasting_glucose_mg_dL": 100.0,
		"age_years":             50.0,
		"sex_at_birth":          "female", // most-frequent training label
	})
	for i := range probs {
		if probs[i] != baseline[i] {
			t.Fatalf("fallback should equal most-frequent label encoding: %v vs %v", probs, baseline)
		}
	}
}

func TestRegistryUnknownDisease(t *testing.T) {
	r := New()
	r.Register(testBundle())

	if _, err := r.Get("t2d"); err != nil {
		t.Fatalf("registered disease should resolve: %v", err)
	}
	_, err := r.Get("cvd")
	var unknown *UnknownDiseaseError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownDiseaseError, got %v", err)
	}
	if len(unknown.Registered) != 1 || unknown.Registered[0] != "t2d" {
		t.Fatalf("error should list registered diseases: %+v", unknown)
	}
	if !strings.Contains(unknown.Error(), "t2d") {
		t.Fatalf("message should name registered diseases: %s", unknown.Error())
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New()
	first := testBundle()
	r.Register(first)

	second := testBundle()
	second.ModelVersion = "other"
	r.Register(second)

	bundle, err := r.Get("t2d")
	if err != nil {
		t.Fatal(err)
	}
	if bundle != first {
		t.Fatal("second Register for the same disease should be a no-op")
	}
}

func writeBundleFiles(t *testing.T, featureListJSON string) Spec {
	t.Helper()
	dir := t.TempDir()

	modelJSON := `{
		"disease": "t2d",
		"model_version": "nhanes_2017_2018_v1",
		"classes": ["normal", "prediabetes", "diabetes"],
		"feature_names": ["fasting_glucose_mg_dL", "age_years"],
		"imputation": {"medians": {"fasting_glucose_mg_dL": 100, "age_years": 50}},
		"scaler": {"means": {"fasting_glucose_mg_dL": 100}, "stds": {"fasting_glucose_mg_dL": 25}},
		"weights": {"biases": [0.1, 0, -0.1], "coefficients": [[-1.2, -0.1], [0.3, 0.1], [0.9, 0.2]]}
	}`
	spec := Spec{
		Disease:         "t2d",
		Cycle:           "2017-2018",
		ModelPath:       filepath.Join(dir, "t2d_model.json"),
		FeatureListPath: filepath.Join(dir, "t2d_feature_list.json"),
		ImportancePath:  filepath.Join(dir, "t2d_perm_importance.csv"),
	}
	if err := os.WriteFile(spec.ModelPath, []byte(modelJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(spec.FeatureListPath, []byte(featureListJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	importanceCSV := "feature,importance_mean,importance_std\nage_years,0.01,0.002\nfasting_glucose_mg_dL,0.12,0.01\n"
	if err := os.WriteFile(spec.ImportancePath, []byte(importanceCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	return spec
}

func TestLoadBundleFromDisk(t *testing.T) {
	spec := writeBundleFiles(t, `["fasting_glucose_mg_dL", "age_years"]`)
	bundle, err := LoadBundle(spec)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if bundle.ModelVersion != "nhanes_2017_2018_v1" {
		t.Fatalf("unexpected version: %s", bundle.ModelVersion)
	}
	if len(bundle.TopFeatures) != 2 || bundle.TopFeatures[0] != "fasting_glucose_mg_dL" {
		t.Fatalf("importance ranking wrong: %v", bundle.TopFeatures)
	}
	probs, err := bundle.PredictProbabilities(map[string]interface{}{"fasting_glucose_mg_dL": 140.0, "age_years": 60.0})
	if err != nil || len(probs) != 3 {
		t.Fatalf("loaded bundle should score: %v %v", probs, err)
	}
}

func TestLoadBundleRejectsFeatureListMismatch(t *testing.T) {
	spec := writeBundleFiles(t, `["age_years", "fasting_glucose_mg_dL"]`)
	if _, err := LoadBundle(spec); err == nil {
		t.Fatal("reordered feature list must fail at load time")
	}
}

func TestLoadWrapsFailuresAsScorerLoadError(t *testing.T) {
	spec := writeBundleFiles(t, `["fasting_glucose_mg_dL", "age_years"]`)
	spec.ModelPath = filepath.Join(t.TempDir(), "missing.json")

	_, err := Load([]Spec{spec})
	var loadErr *ScorerLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ScorerLoadError, got %v", err)
	}
	if loadErr.Disease != "t2d" {
		t.Fatalf("unexpected disease in error: %s", loadErr.Disease)
	}
}
