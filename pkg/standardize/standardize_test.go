package standardize

import (
	"errors"
	"testing"

	"github.com/riskwise-ai/platform/pkg/common/logger"
	"github.com/riskwise-ai/platform/pkg/dataset"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

func TestNullIfSentinel(t *testing.T) {
	cases := []struct {
		in   interface{}
		null bool
	}{
		{7.0, true},
		{9.0, true},
		{99.0, true},
		{9999.0, true},
		{99999.0, true},
		{6.5, false},
		{100.0, false},
		{126.0, false},
		{"yes", false},
		{nil, true},
	}
	for _, c := range cases {
		out := NullIfSentinel(c.in)
		if c.null && out != nil {
			t.Fatalf("expected %v to be nulled, got %v", c.in, out)
		}
		if !c.null && out == nil {
			t.Fatalf("expected %v to pass through, got nil", c.in)
		}
	}
}

func TestNullIfSentinelIsIdempotent(t *testing.T) {
	values := []interface{}{7.0, 777.0, 95.5, "no", nil, 42.0}
	for _, v := range values {
		once := NullIfSentinel(v)
		twice := NullIfSentinel(once)
		if once != twice {
			t.Fatalf("second pass changed %v: %v -> %v", v, once, twice)
		}
	}
}

func TestRecodeCategoricals(t *testing.T) {
	cases := []struct {
		kind string
		in   interface{}
		want string
	}{
		{RecodeSex, 1.0, "male"},
		{RecodeSex, 2.0, "female"},
		{RecodeSex, 9.0, "unknown"},
		{RecodeSex, nil, "unknown"},
		{RecodeRaceEthnicity, 6.0, "non_hispanic_asian"},
		{RecodeRaceEthnicity, 5.0, "unknown"},
		{RecodePregnancy, 1.0, "pregnant"},
		{RecodePregnancy, 3.0, "unknown"},
		{RecodeYesNo, 1.0, "yes"},
		{RecodeYesNo, 2.0, "no"},
		{RecodeYesNo, 7.0, "unknown"},
	}
	for _, c := range cases {
		if got := Recode(c.kind, c.in); got != c.want {
			t.Fatalf("Recode(%s, %v) = %q, want %q", c.kind, c.in, got, c.want)
		}
	}
}

func TestRecodeIsIdempotent(t *testing.T) {
	for _, v := range []interface{}{1.0, 2.0, 9.0, nil} {
		once := Recode(RecodeYesNo, v)
		if twice := Recode(RecodeYesNo, once); twice != once {
			t.Fatalf("second recode pass changed %q -> %q", once, twice)
		}
	}
}

func demoSpec() TableSpec {
	return TableSpec{
		Seqn: "SEQN",
		Fields: []FieldSpec{
			{Canonical: "age_years", Raw: "RIDAGEYR"},
			{Canonical: "sex_at_birth", Raw: "RIAGENDR", Recode: RecodeSex},
			{Canonical: "race_ethnicity", Raw: "RIDRETH3", Fallback: "RIDRETH1", Recode: RecodeRaceEthnicity},
		},
	}
}

func TestStandardizeRenamesAndRecodes(t *testing.T) {
	raw := dataset.New("DEMO", "SEQN", []string{"RIDAGEYR", "RIAGENDR", "RIDRETH3"})
	raw.Append(dataset.Row{"SEQN": 1.0, "RIDAGEYR": 44.0, "RIAGENDR": 2.0, "RIDRETH3": 3.0})
	raw.Append(dataset.Row{"SEQN": 2.0, "RIDAGEYR": 9999.0, "RIAGENDR": 9.0, "RIDRETH3": nil})

	std, err := Standardize(raw, "DEMO", demoSpec())
	if err != nil {
		t.Fatalf("standardize failed: %v", err)
	}
	row := std.Rows[0]
	if row["age_years"] != 44.0 || row["sex_at_birth"] != "female" || row["race_ethnicity"] != "non_hispanic_white" {
		t.Fatalf("unexpected standardized row: %v", row)
	}
	row = std.Rows[1]
	if row["age_years"] != nil {
		t.Fatalf("sentinel age should be nil, got %v", row["age_years"])
	}
	if row["sex_at_birth"] != "unknown" || row["race_ethnicity"] != "unknown" {
		t.Fatalf("missing categoricals should be unknown, got %v", row)
	}
}

func TestStandardizeFallbackColumn(t *testing.T) {
	raw := dataset.New("DEMO", "SEQN", []string{"RIDAGEYR", "RIAGENDR", "RIDRETH1"})
	raw.Append(dataset.Row{"SEQN": 1.0, "RIDAGEYR": 30.0, "RIAGENDR": 1.0, "RIDRETH1": 4.0})

	std, err := Standardize(raw, "DEMO", demoSpec())
	if err != nil {
		t.Fatalf("standardize failed: %v", err)
	}
	if std.Rows[0]["race_ethnicity"] != "non_hispanic_black" {
		t.Fatalf("fallback column not used: %v", std.Rows[0]["race_ethnicity"])
	}
}

func TestStandardizeAbsentColumnFillsNull(t *testing.T) {
	raw := dataset.New("BMX", "SEQN", []string{"BMXWT"})
	raw.Append(dataset.Row{"SEQN": 1.0, "BMXWT": 80.0})

	spec := TableSpec{
		Seqn: "SEQN",
		Fields: []FieldSpec{
			{Canonical: "weight_kg", Raw: "BMXWT"},
			{Canonical: "height_cm", Raw: "BMXHT"},
		},
	}
	std, err := Standardize(raw, "BMX", spec)
	if err != nil {
		t.Fatalf("absent declared column should not be fatal: %v", err)
	}
	if std.Rows[0]["height_cm"] != nil {
		t.Fatalf("absent column should fill nil, got %v", std.Rows[0]["height_cm"])
	}
	if std.Rows[0]["weight_kg"] != 80.0 {
		t.Fatalf("present column mangled: %v", std.Rows[0]["weight_kg"])
	}
}

func TestStandardizeMissingSubjectKeyIsFatal(t *testing.T) {
	raw := dataset.New("BMX", "ID", []string{"BMXWT"})
	raw.Append(dataset.Row{"ID": 1.0, "BMXWT": 80.0})

	spec := TableSpec{Seqn: "SEQN", Fields: []FieldSpec{{Canonical: "weight_kg", Raw: "BMXWT"}}}
	_, err := Standardize(raw, "BMX", spec)
	var missing *MissingRequiredColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRequiredColumnError, got %v", err)
	}
	if missing.Column != "SEQN" {
		t.Fatalf("unexpected column in error: %s", missing.Column)
	}
}

func TestStandardizeAveragesReadings(t *testing.T) {
	raw := dataset.New("BPX", "SEQN", []string{"BPXSY1", "BPXSY2", "BPXSY3"})
	raw.Append(dataset.Row{"SEQN": 1.0, "BPXSY1": 118.0, "BPXSY2": 122.0, "BPXSY3": nil})
	raw.Append(dataset.Row{"SEQN": 2.0, "BPXSY1": 9999.0, "BPXSY2": nil, "BPXSY3": nil})

	spec := TableSpec{
		Seqn:     "SEQN",
		Readings: []ReadingSpec{{Canonical: "systolic_bp_mmHg", Raw: []string{"BPXSY1", "BPXSY2", "BPXSY3"}}},
	}
	std, err := Standardize(raw, "BPX", spec)
	if err != nil {
		t.Fatalf("standardize failed: %v", err)
	}
	if std.Rows[0]["systolic_bp_mmHg"] != 120.0 {
		t.Fatalf("expected mean 120, got %v", std.Rows[0]["systolic_bp_mmHg"])
	}
	// A sentinel-coded reading is missing, not a measurement of 9999.
	if std.Rows[1]["systolic_bp_mmHg"] != nil {
		t.Fatalf("expected nil mean for all-sentinel readings, got %v", std.Rows[1]["systolic_bp_mmHg"])
	}
}
