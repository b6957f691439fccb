package features

import (
	"github.com/riskwise-ai/platform/pkg/dataset"
)

// RequiredStrict is the field set a record needs before it may be labeled
// or modeled. HbA1c is deliberately absent: it is missing too often to
// require, and the label deriver tolerates it.
var RequiredStrict = []string{
	"fasting_glucose_mg_dL",
	"triglycerides_mg_dL",
	"hdl_mg_dL",
	"age_years",
	"sex_at_birth",
	"waist_circumference_cm",
	"systolic_bp_mmHg",
	"diastolic_bp_mmHg",
}

// Derived columns produced by DeriveRow.
var DerivedColumns = []string{
	"bmi",
	"tg_to_hdl_ratio",
	"non_hdl_chol_mg_dL",
	"on_glucose_lowering_meds",
}

// DeriveRow computes the derived fields in place. This is the single source
// of truth for feature derivation: the batch pipeline and per-request
// serving both call exactly this function, so a trained model and a live
// request can never disagree on how a feature was built.
//
// Semantics are compute-if-absent: a value already supplied is never
// overwritten, and every rule degrades to nil when its inputs are missing.
func DeriveRow(row dataset.Row) {
	if !present(row, "bmi") {
		row["bmi"] = nil
		h, hok := dataset.Float(row, "height_cm")
		w, wok := dataset.Float(row, "weight_kg")
		if hok && wok && h > 0 {
			hm := h / 100.0
			row["bmi"] = w / (hm * hm)
		}
	}

	if !present(row, "tg_to_hdl_ratio") {
		row["tg_to_hdl_ratio"] = nil
		hdl, hok := dataset.Float(row, "hdl_mg_dL")
		tg, tok := dataset.Float(row, "triglycerides_mg_dL")
		if hok && tok && hdl != 0 {
			row["tg_to_hdl_ratio"] = tg / hdl
		}
	}

	if !present(row, "non_hdl_chol_mg_dL") {
		row["non_hdl_chol_mg_dL"] = nil
		tc, tok := dataset.Float(row, "total_cholesterol_mg_dL")
		hdl, hok := dataset.Float(row, "hdl_mg_dL")
		if tok && hok {
			row["non_hdl_chol_mg_dL"] = tc - hdl
		}
	}

	if !present(row, "on_glucose_lowering_meds") {
		// Missing medication flags are treated as not-yes, not as errors.
		insulin, _ := dataset.String(row, "on_insulin_now")
		pills, _ := dataset.String(row, "on_diabetes_pills_now")
		if insulin == "yes" || pills == "yes" {
			row["on_glucose_lowering_meds"] = "yes"
		} else {
			row["on_glucose_lowering_meds"] = "no"
		}
	}
}

// DeriveTable is the bulk adapter: a thin loop over DeriveRow.
func DeriveTable(t *dataset.Table) {
	for _, c := range DerivedColumns {
		t.AddColumn(c)
	}
	for _, row := range t.Rows {
		DeriveRow(row)
	}
}

// StrictFilter returns the strict cohort: rows with every required field
// non-null. Rows failing the predicate are excluded entirely.
func StrictFilter(t *dataset.Table) (*dataset.Table, int) {
	filtered := &dataset.Table{Name: t.Name, Key: t.Key, Columns: t.Columns}
	dropped := 0
	for _, row := range t.Rows {
		if hasAllRequired(row) {
			filtered.Rows = append(filtered.Rows, row)
		} else {
			dropped++
		}
	}
	return filtered, dropped
}

func hasAllRequired(row dataset.Row) bool {
	for _, field := range RequiredStrict {
		if !present(row, field) {
			return false
		}
	}
	return true
}

func present(row dataset.Row, key string) bool {
	v, ok := row[key]
	return ok && v != nil
}
