package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/riskwise-ai/platform/pkg/common/logger"
	"github.com/riskwise-ai/platform/pkg/dataset"
	"github.com/riskwise-ai/platform/pkg/features"
	"github.com/riskwise-ai/platform/pkg/labels"
	"github.com/riskwise-ai/platform/pkg/standardize"
)

// EventPublisher is the optional event-bus collaborator.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Columns that must never reach the frozen feature list: the label itself,
// the evidence flags behind it, the raw fields the label is defined from,
// presence flags a live request can never supply, and the subject key.
var excludedFeatureColumns = map[string]struct{}{
	standardize.SubjectKey:     {},
	labels.LabelColumn:         {},
	"diabetes_self_report":     {},
	"on_insulin_now":           {},
	"on_diabetes_pills_now":    {},
	"on_glucose_lowering_meds": {},
	"has_fasting_glucose":      {},
	"has_triglycerides":        {},
	"has_hba1c":                {},
}

func init() {
	for _, c := range labels.EvidenceColumns {
		excludedFeatureColumns[c] = struct{}{}
	}
}

// Runner is the training-time batch pipeline: standardize every raw table,
// merge onto the base cohort, derive features, filter to the strict cohort,
// label, and export the labeled dataset plus the frozen feature list.
type Runner struct {
	reader    TableReader
	mapping   *standardize.Mapping
	outDir    string
	publisher EventPublisher
}

func NewRunner(reader TableReader, mapping *standardize.Mapping, outDir string, publisher EventPublisher) *Runner {
	return &Runner{reader: reader, mapping: mapping, outDir: outDir, publisher: publisher}
}

type Result struct {
	Cohort      *dataset.Table
	FeatureList []string
	LabelCounts map[int]int
	DroppedRows int
	DatasetPath string
}

func (r *Runner) Run(ctx context.Context) (*Result, error) {
	standardized := make(map[string]*dataset.Table, len(r.mapping.Order))
	for _, name := range r.mapping.Order {
		raw, err := r.reader.ReadTable(name)
		if err != nil {
			return nil, err
		}
		std, err := standardize.Standardize(raw, name, r.mapping.Tables[name])
		if err != nil {
			return nil, err
		}
		logger.Log.WithFields(map[string]interface{}{
			"table": name,
			"rows":  len(std.Rows),
			"cols":  len(std.Columns),
		}).Info("Standardized table")
		standardized[name] = std
	}

	merged := standardized[r.mapping.Base]
	baseRows := len(merged.Rows)
	for _, name := range r.mapping.Order {
		if name == r.mapping.Base {
			continue
		}
		joined, err := dataset.LeftJoin(merged, standardized[name])
		if err != nil {
			return nil, fmt.Errorf("merge %s onto %s: %w", name, r.mapping.Base, err)
		}
		merged = joined
	}
	if len(merged.Rows) != baseRows {
		return nil, fmt.Errorf("merged cohort has %d rows, base %s has %d", len(merged.Rows), r.mapping.Base, baseRows)
	}

	merged.AddPresenceFlag("fasting_glucose_mg_dL", "has_fasting_glucose")
	merged.AddPresenceFlag("triglycerides_mg_dL", "has_triglycerides")
	merged.AddPresenceFlag("hba1c_percent", "has_hba1c")

	strict, dropped := features.StrictFilter(merged)
	logger.Log.WithFields(map[string]interface{}{
		"before":  len(merged.Rows),
		"after":   len(strict.Rows),
		"dropped": dropped,
	}).Info("Strict cohort filtering")

	features.DeriveTable(strict)
	labels.LabelTable(strict)

	labelCounts := make(map[int]int)
	for _, row := range strict.Rows {
		if label, ok := row[labels.LabelColumn].(int); ok {
			labelCounts[label]++
		}
	}
	for label, count := range labelCounts {
		logger.Log.WithFields(map[string]interface{}{
			"label": labels.Name(label),
			"count": count,
		}).Info("Label distribution")
	}

	featureList := buildFeatureList(strict.Columns)

	result := &Result{
		Cohort:      strict,
		FeatureList: featureList,
		LabelCounts: labelCounts,
		DroppedRows: dropped,
	}
	if r.outDir != "" {
		if err := r.export(result); err != nil {
			return nil, err
		}
	}

	if r.publisher != nil {
		if err := r.publisher.PublishEvent(ctx, "dataset.labeled", "pipeline-service", map[string]interface{}{
			"cycle":        r.mapping.Cycle,
			"rows":         len(strict.Rows),
			"dropped":      dropped,
			"num_features": len(featureList),
		}); err != nil {
			logger.Log.WithError(err).Warn("Failed to publish dataset event")
		}
	}
	return result, nil
}

func (r *Runner) export(result *Result) error {
	datasetPath := filepath.Join(r.outDir, "model_a_features_labels.csv")
	if err := WriteCSV(result.Cohort, datasetPath); err != nil {
		return fmt.Errorf("write labeled dataset: %w", err)
	}
	result.DatasetPath = datasetPath

	if err := WriteJSON(result.FeatureList, filepath.Join(r.outDir, "feature_list.json")); err != nil {
		return fmt.Errorf("write frozen feature list: %w", err)
	}
	if err := WriteJSON(result.Cohort.Missingness(), filepath.Join(r.outDir, "missingness.json")); err != nil {
		return fmt.Errorf("write missingness report: %w", err)
	}
	logger.Log.WithFields(map[string]interface{}{
		"dataset":  datasetPath,
		"rows":     len(result.Cohort.Rows),
		"features": len(result.FeatureList),
	}).Info("Pipeline artifacts written")
	return nil
}

// buildFeatureList freezes the modeling feature order: the labeled table's
// column order minus the excluded set. This exact list ships with the
// trained scorer and governs every serving-time row build.
func buildFeatureList(columns []string) []string {
	var featureList []string
	for _, c := range columns {
		if _, excluded := excludedFeatureColumns[c]; !excluded {
			featureList = append(featureList, c)
		}
	}
	return featureList
}
