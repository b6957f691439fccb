package registry

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/riskwise-ai/platform/pkg/common/logger"
)

const topFeatureCount = 10

// Spec locates the artifacts for one disease model.
type Spec struct {
	Disease         string
	Cycle           string
	ModelPath       string
	FeatureListPath string
	ImportancePath  string
}

// DefaultSpecs builds specs from the conventional model-directory layout.
func DefaultSpecs(modelDir, cycle string, diseases []string) []Spec {
	specs := make([]Spec, 0, len(diseases))
	for _, disease := range diseases {
		specs = append(specs, Spec{
			Disease:         disease,
			Cycle:           cycle,
			ModelPath:       filepath.Join(modelDir, fmt.Sprintf("%s_model.json", disease)),
			FeatureListPath: filepath.Join(modelDir, fmt.Sprintf("%s_feature_list.json", disease)),
			ImportancePath:  filepath.Join(modelDir, fmt.Sprintf("%s_perm_importance.csv", disease)),
		})
	}
	return specs
}

// Bundle holds the loaded artifacts for one disease: the scorer, the frozen
// feature order it was trained on, and an optional global importance
// ranking for explanation notes.
type Bundle struct {
	Disease      string
	ModelVersion string
	FeatureList  []string
	Scorer       Scorer
	TopFeatures  []string
}

// BuildFeatureRow shapes an arbitrary keyed payload into the exact row the
// scorer expects: frozen column order, unknown keys ignored, missing keys
// nil. No reordering, renaming, or type coercion happens here.
func (b *Bundle) BuildFeatureRow(payload map[string]interface{}) []interface{} {
	row := make([]interface{}, len(b.FeatureList))
	for i, name := range b.FeatureList {
		if v, ok := payload[name]; ok {
			row[i] = v
		} else {
			row[i] = nil
		}
	}
	return row
}

// PredictProbabilities builds the feature row and scores it.
func (b *Bundle) PredictProbabilities(payload map[string]interface{}) ([]float64, error) {
	return b.Scorer.PredictProbabilities(b.BuildFeatureRow(payload))
}

// ScorerLoadError is fatal at startup: the process must never serve with a
// missing or inconsistent bundle.
type ScorerLoadError struct {
	Disease string
	Path    string
	Err     error
}

func (e *ScorerLoadError) Error() string {
	return fmt.Sprintf("failed to load scorer bundle for %s from %s: %v", e.Disease, e.Path, e.Err)
}

func (e *ScorerLoadError) Unwrap() error {
	return e.Err
}

// UnknownDiseaseError reports an inference request against an unregistered
// disease, listing what is registered.
type UnknownDiseaseError struct {
	Disease    string
	Registered []string
}

func (e *UnknownDiseaseError) Error() string {
	return fmt.Sprintf("unknown disease %q; registered: %s", e.Disease, strings.Join(e.Registered, ", "))
}

// Registry owns the loaded model bundles. It is constructed eagerly at
// process start and is immutable afterward, so concurrent requests read it
// without coordination.
type Registry struct {
	bundles map[string]*Bundle
}

func New() *Registry {
	return &Registry{bundles: make(map[string]*Bundle)}
}

// Load eagerly loads every spec so a cold artifact failure surfaces before
// the service accepts traffic.
func Load(specs []Spec) (*Registry, error) {
	r := New()
	for _, spec := range specs {
		bundle, err := LoadBundle(spec)
		if err != nil {
			return nil, &ScorerLoadError{Disease: spec.Disease, Path: spec.ModelPath, Err: err}
		}
		r.Register(bundle)
		logger.Log.WithFields(map[string]interface{}{
			"disease":       bundle.Disease,
			"model_version": bundle.ModelVersion,
			"features":      len(bundle.FeatureList),
		}).Info("Model bundle loaded")
	}
	return r, nil
}

// Register is idempotent: at most one bundle per disease, first one wins.
func (r *Registry) Register(bundle *Bundle) {
	if _, exists := r.bundles[bundle.Disease]; exists {
		return
	}
	r.bundles[bundle.Disease] = bundle
}

func (r *Registry) Get(disease string) (*Bundle, error) {
	bundle, ok := r.bundles[disease]
	if !ok {
		return nil, &UnknownDiseaseError{Disease: disease, Registered: r.Diseases()}
	}
	return bundle, nil
}

func (r *Registry) Diseases() []string {
	diseases := make([]string, 0, len(r.bundles))
	for disease := range r.bundles {
		diseases = append(diseases, disease)
	}
	sort.Strings(diseases)
	return diseases
}

// BundleInfo is the summary shape for the models endpoint.
type BundleInfo struct {
	Disease      string `json:"disease"`
	ModelVersion string `json:"model_version"`
	NumFeatures  int    `json:"num_features"`
}

func (r *Registry) List() []BundleInfo {
	infos := make([]BundleInfo, 0, len(r.bundles))
	for _, disease := range r.Diseases() {
		bundle := r.bundles[disease]
		infos = append(infos, BundleInfo{
			Disease:      bundle.Disease,
			ModelVersion: bundle.ModelVersion,
			NumFeatures:  len(bundle.FeatureList),
		})
	}
	return infos
}

// LoadBundle loads one disease's artifacts and cross-checks the frozen
// feature list against the scorer's trained expectation. Any mismatch in
// length or order is a load-time error, never a per-request one.
func LoadBundle(spec Spec) (*Bundle, error) {
	featureList, err := loadFeatureList(spec.FeatureListPath)
	if err != nil {
		return nil, err
	}

	artifact, err := LoadArtifact(spec.ModelPath)
	if err != nil {
		return nil, err
	}
	if len(artifact.FeatureNames) != len(featureList) {
		return nil, fmt.Errorf("frozen feature list has %d fields, scorer expects %d", len(featureList), len(artifact.FeatureNames))
	}
	for i, name := range artifact.FeatureNames {
		if featureList[i] != name {
			return nil, fmt.Errorf("frozen feature list position %d is %q, scorer expects %q", i, featureList[i], name)
		}
	}

	version := artifact.ModelVersion
	if version == "" {
		version = fmt.Sprintf("nhanes_%s", spec.Cycle)
	}

	bundle := &Bundle{
		Disease:      spec.Disease,
		ModelVersion: version,
		FeatureList:  featureList,
		Scorer:       NewLinearScorer(artifact),
	}

	if spec.ImportancePath != "" {
		top, err := loadTopFeatures(spec.ImportancePath)
		if err != nil {
			// Importance is an informational side artifact; a bad or absent
			// file never blocks serving.
			logger.Log.WithError(err).WithField("path", spec.ImportancePath).Warn("Skipping permutation importance artifact")
		} else {
			bundle.TopFeatures = top
		}
	}
	return bundle, nil
}

func loadFeatureList(path string) ([]string, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var featureList []string
	if err := json.Unmarshal(content, &featureList); err != nil {
		return nil, fmt.Errorf("parse frozen feature list: %w", err)
	}
	if len(featureList) == 0 {
		return nil, fmt.Errorf("frozen feature list is empty")
	}
	return featureList, nil
}

type featureImportance struct {
	feature    string
	importance float64
}

func loadTopFeatures(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("importance file %s has no data rows", path)
	}

	header := records[0]
	featureIdx, importanceIdx := -1, -1
	for i, col := range header {
		switch col {
		case "feature":
			featureIdx = i
		case "importance_mean":
			importanceIdx = i
		}
	}
	if featureIdx < 0 || importanceIdx < 0 {
		return nil, fmt.Errorf("importance file %s missing feature/importance_mean columns", path)
	}

	ranked := make([]featureImportance, 0, len(records)-1)
	for _, record := range records[1:] {
		value, err := strconv.ParseFloat(record[importanceIdx], 64)
		if err != nil {
			continue
		}
		ranked = append(ranked, featureImportance{feature: record[featureIdx], importance: value})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].importance > ranked[j].importance
	})

	top := make([]string, 0, topFeatureCount)
	for i, fi := range ranked {
		if i >= topFeatureCount {
			break
		}
		top = append(top, fi.feature)
	}
	return top, nil
}
