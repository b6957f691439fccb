package features

import (
	"math"
	"testing"

	"github.com/riskwise-ai/platform/pkg/dataset"
)

func samplePayload() dataset.Row {
	return dataset.Row{
		"age_years":               51.0,
		"sex_at_birth":            "female",
		"height_cm":               165.0,
		"weight_kg":               70.0,
		"waist_circumference_cm":  92.0,
		"systolic_bp_mmHg":        128.0,
		"diastolic_bp_mmHg":       82.0,
		"fasting_glucose_mg_dL":   104.0,
		"triglycerides_mg_dL":     80.0,
		"hdl_mg_dL":               40.0,
		"total_cholesterol_mg_dL": 190.0,
	}
}

func TestDeriveRowComputesDerivedFields(t *testing.T) {
	row := samplePayload()
	DeriveRow(row)

	if ratio, ok := dataset.Float(row, "tg_to_hdl_ratio"); !ok || ratio != 2.0 {
		t.Fatalf("expected tg_to_hdl_ratio exactly 2.0, got %v", row["tg_to_hdl_ratio"])
	}
	if nonHDL, ok := dataset.Float(row, "non_hdl_chol_mg_dL"); !ok || nonHDL != 150.0 {
		t.Fatalf("expected non_hdl 150, got %v", row["non_hdl_chol_mg_dL"])
	}
	bmi, ok := dataset.Float(row, "bmi")
	if !ok || math.Abs(bmi-70.0/(1.65*1.65)) > 1e-9 {
		t.Fatalf("unexpected bmi: %v", row["bmi"])
	}
	if row["on_glucose_lowering_meds"] != "no" {
		t.Fatalf("missing med flags should derive to no, got %v", row["on_glucose_lowering_meds"])
	}
}

func TestDeriveRowNeverOverwrites(t *testing.T) {
	row := samplePayload()
	row["bmi"] = 31.5
	row["tg_to_hdl_ratio"] = 1.1
	DeriveRow(row)

	if row["bmi"] != 31.5 {
		t.Fatalf("supplied bmi was overwritten: %v", row["bmi"])
	}
	if row["tg_to_hdl_ratio"] != 1.1 {
		t.Fatalf("supplied ratio was overwritten: %v", row["tg_to_hdl_ratio"])
	}
}

func TestDeriveRowLeavesNullOnMissingInputs(t *testing.T) {
	row := samplePayload()
	delete(row, "total_cholesterol_mg_dL")
	delete(row, "height_cm")
	DeriveRow(row)

	if row["non_hdl_chol_mg_dL"] != nil {
		t.Fatalf("non_hdl should stay nil without total cholesterol, got %v", row["non_hdl_chol_mg_dL"])
	}
	if row["bmi"] != nil {
		t.Fatalf("bmi should stay nil without height, got %v", row["bmi"])
	}
}

func TestDeriveRowZeroHDLLeavesRatioNull(t *testing.T) {
	row := samplePayload()
	row["hdl_mg_dL"] = 0.0
	DeriveRow(row)
	if row["tg_to_hdl_ratio"] != nil {
		t.Fatalf("ratio should be nil with zero hdl, got %v", row["tg_to_hdl_ratio"])
	}
}

func TestDeriveRowMedicationFlag(t *testing.T) {
	row := samplePayload()
	row["on_insulin_now"] = "no"
	row["on_diabetes_pills_now"] = "yes"
	DeriveRow(row)
	if row["on_glucose_lowering_meds"] != "yes" {
		t.Fatalf("expected combined meds flag yes, got %v", row["on_glucose_lowering_meds"])
	}
}

// The central train/serve-skew regression test: bulk mode over a one-row
// table must equal single-row mode field for field.
func TestBulkAndSingleRowParity(t *testing.T) {
	single := samplePayload()
	DeriveRow(single)

	table := &dataset.Table{Name: "cohort", Key: "SEQN"}
	for col := range samplePayload() {
		table.AddColumn(col)
	}
	bulkRow := samplePayload()
	table.Rows = []dataset.Row{bulkRow}
	DeriveTable(table)

	for _, col := range DerivedColumns {
		if bulkRow[col] != single[col] {
			t.Fatalf("parity violation on %s: bulk=%v single=%v", col, bulkRow[col], single[col])
		}
	}
	for col, want := range single {
		if bulkRow[col] != want {
			t.Fatalf("parity violation on %s: bulk=%v single=%v", col, bulkRow[col], want)
		}
	}
}

func TestStrictFilterDropsIncompleteRows(t *testing.T) {
	table := &dataset.Table{Name: "cohort", Key: "SEQN"}
	complete := samplePayload()
	complete["SEQN"] = 1.0
	incomplete := samplePayload()
	incomplete["SEQN"] = 2.0
	incomplete["waist_circumference_cm"] = nil
	noA1c := samplePayload()
	noA1c["SEQN"] = 3.0
	noA1c["hba1c_percent"] = nil

	table.Rows = []dataset.Row{complete, incomplete, noA1c}

	strict, dropped := StrictFilter(table)
	if dropped != 1 || len(strict.Rows) != 2 {
		t.Fatalf("expected exactly the null-waist row dropped, got %d dropped, %d kept", dropped, len(strict.Rows))
	}
	for _, row := range strict.Rows {
		if row["SEQN"] == 2.0 {
			t.Fatal("null-waist row survived strict filter")
		}
	}
}
