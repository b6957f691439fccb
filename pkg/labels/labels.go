package labels

import (
	"github.com/riskwise-ai/platform/pkg/dataset"
)

// Outcome classes, in model class order.
const (
	Normal      = 0
	Prediabetes = 1
	Diabetes    = 2
)

// LabelColumn is the outcome column written by LabelTable.
const LabelColumn = "label_t2d_status"

// Clinical thresholds behind each criterion.
const (
	a1cDiabetesMin    = 6.5
	a1cPrediabetesMin = 5.7
	gluDiabetesMin    = 126
	gluPrediabetesMin = 100
)

var names = map[int]string{
	Normal:      "normal",
	Prediabetes: "prediabetes",
	Diabetes:    "diabetes",
}

func Name(label int) string {
	if n, ok := names[label]; ok {
		return n
	}
	return "unknown"
}

// Evidence records which individual criterion fired, kept alongside the
// label for debugging misclassifications and cohort audits.
type Evidence struct {
	DiabetesByA1c        bool `json:"diabetes_by_a1c"`
	DiabetesByGlucose    bool `json:"diabetes_by_glucose"`
	DiabetesBySelfReport bool `json:"diabetes_by_selfreport"`
	DiabetesByMeds       bool `json:"diabetes_by_meds"`
	PrediabetesByA1c     bool `json:"prediabetes_by_a1c"`
	PrediabetesByGlucose bool `json:"prediabetes_by_glucose"`
	Diabetes             bool `json:"diabetes"`
	Prediabetes          bool `json:"prediabetes"`
}

// Derive assigns the three-class outcome from overlapping clinical signals.
// Missing evidence never fires a criterion. Any single diabetes signal is
// sufficient (high-sensitivity policy), and diabetes always takes precedence
// over prediabetes.
func Derive(row dataset.Row) (int, Evidence) {
	var ev Evidence

	if a1c, ok := dataset.Float(row, "hba1c_percent"); ok {
		ev.DiabetesByA1c = a1c >= a1cDiabetesMin
		ev.PrediabetesByA1c = a1c >= a1cPrediabetesMin && a1c < a1cDiabetesMin
	}
	if glu, ok := dataset.Float(row, "fasting_glucose_mg_dL"); ok {
		ev.DiabetesByGlucose = glu >= gluDiabetesMin
		ev.PrediabetesByGlucose = glu >= gluPrediabetesMin && glu < gluDiabetesMin
	}
	if selfReport, ok := dataset.String(row, "diabetes_self_report"); ok {
		ev.DiabetesBySelfReport = selfReport == "yes"
	}
	if meds, ok := dataset.String(row, "on_glucose_lowering_meds"); ok {
		ev.DiabetesByMeds = meds == "yes"
	}

	ev.Diabetes = ev.DiabetesByA1c || ev.DiabetesByGlucose || ev.DiabetesBySelfReport || ev.DiabetesByMeds
	ev.Prediabetes = !ev.Diabetes && (ev.PrediabetesByA1c || ev.PrediabetesByGlucose)

	switch {
	case ev.Diabetes:
		return Diabetes, ev
	case ev.Prediabetes:
		return Prediabetes, ev
	default:
		return Normal, ev
	}
}

// EvidenceColumns are written next to the label by LabelTable.
var EvidenceColumns = []string{
	"diabetes_by_a1c",
	"diabetes_by_glucose",
	"diabetes_by_selfreport",
	"diabetes_by_meds",
	"prediabetes_by_a1c",
	"prediabetes_by_glucose",
}

// LabelTable attaches the label and evidence flags to every row. Callers
// must apply the strict-cohort filter first; this function labels whatever
// it is given.
func LabelTable(t *dataset.Table) {
	t.AddColumn(LabelColumn)
	for _, c := range EvidenceColumns {
		t.AddColumn(c)
	}
	for _, row := range t.Rows {
		label, ev := Derive(row)
		row[LabelColumn] = label
		row["diabetes_by_a1c"] = ev.DiabetesByA1c
		row["diabetes_by_glucose"] = ev.DiabetesByGlucose
		row["diabetes_by_selfreport"] = ev.DiabetesBySelfReport
		row["diabetes_by_meds"] = ev.DiabetesByMeds
		row["prediabetes_by_a1c"] = ev.PrediabetesByA1c
		row["prediabetes_by_glucose"] = ev.PrediabetesByGlucose
	}
}
