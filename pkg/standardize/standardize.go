package standardize

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/riskwise-ai/platform/pkg/common/logger"
	"github.com/riskwise-ai/platform/pkg/dataset"
	"gopkg.in/yaml.v3"
)

// SubjectKey is the canonical subject key column shared by all
// standardized tables.
const SubjectKey = "SEQN"

// FieldSpec maps one raw survey column to its canonical name.
type FieldSpec struct {
	Canonical string `yaml:"canonical"`
	Raw       string `yaml:"raw"`
	Recode    string `yaml:"recode,omitempty"`
	Fallback  string `yaml:"fallback,omitempty"`
}

// ReadingSpec averages repeated raw readings into one canonical column.
type ReadingSpec struct {
	Canonical string   `yaml:"canonical"`
	Raw       []string `yaml:"raw"`
}

type TableSpec struct {
	Seqn     string        `yaml:"seqn"`
	Fields   []FieldSpec   `yaml:"fields,omitempty"`
	Readings []ReadingSpec `yaml:"readings,omitempty"`
}

// Mapping is the survey-cycle field-mapping document.
type Mapping struct {
	Cycle  string               `yaml:"cycle"`
	Base   string               `yaml:"base"`
	Order  []string             `yaml:"order"`
	Tables map[string]TableSpec `yaml:"tables"`
}

func LoadMapping(path string) (*Mapping, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var m Mapping
	if err := yaml.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("parse table mapping %s: %w", path, err)
	}
	if len(m.Tables) == 0 {
		return nil, fmt.Errorf("table mapping %s declares no tables", path)
	}
	for _, name := range m.Order {
		if _, ok := m.Tables[name]; !ok {
			return nil, fmt.Errorf("table mapping order references unknown table %s", name)
		}
	}
	if _, ok := m.Tables[m.Base]; !ok {
		return nil, fmt.Errorf("table mapping base references unknown table %s", m.Base)
	}
	return &m, nil
}

// MissingRequiredColumnError is fatal only for the subject-key column;
// other declared columns degrade to nil.
type MissingRequiredColumnError struct {
	Table  string
	Column string
}

func (e *MissingRequiredColumnError) Error() string {
	return fmt.Sprintf("table %s is missing required column %s", e.Table, e.Column)
}

// Standardize renames a raw table's columns to canonical names, nulls
// sentinel codes, recodes categoricals, and averages repeated readings.
// Declared columns absent from the raw table are filled with nil and
// reported; only a missing subject-key column aborts.
func Standardize(raw *dataset.Table, name string, spec TableSpec) (*dataset.Table, error) {
	if !raw.HasColumn(spec.Seqn) {
		return nil, &MissingRequiredColumnError{Table: name, Column: spec.Seqn}
	}

	var columns []string
	for _, f := range spec.Fields {
		columns = append(columns, f.Canonical)
	}
	for _, r := range spec.Readings {
		columns = append(columns, r.Canonical)
	}
	out := dataset.New(name, SubjectKey, columns)

	for _, f := range spec.Fields {
		if !rawColumnAvailable(raw, f) {
			logger.Log.WithFields(map[string]interface{}{
				"table":  name,
				"column": f.Raw,
			}).Warn("Declared source column absent; filling null")
		}
	}

	for _, rawRow := range raw.Rows {
		row := dataset.Row{SubjectKey: rawRow[spec.Seqn]}
		for _, f := range spec.Fields {
			row[f.Canonical] = standardizeValue(raw, rawRow, f)
		}
		for _, r := range spec.Readings {
			row[r.Canonical] = meanOfReadings(rawRow, r.Raw)
		}
		out.Append(row)
	}
	return out, nil
}

func rawColumnAvailable(raw *dataset.Table, f FieldSpec) bool {
	return raw.HasColumn(f.Raw) || (f.Fallback != "" && raw.HasColumn(f.Fallback))
}

func standardizeValue(raw *dataset.Table, rawRow dataset.Row, f FieldSpec) interface{} {
	col := f.Raw
	if !raw.HasColumn(col) && f.Fallback != "" && raw.HasColumn(f.Fallback) {
		col = f.Fallback
	}
	value := rawRow[col]
	if f.Recode != "" {
		return Recode(f.Recode, value)
	}
	return NullIfSentinel(value)
}

func meanOfReadings(rawRow dataset.Row, cols []string) interface{} {
	cleaned := make(dataset.Row, len(cols))
	for _, c := range cols {
		cleaned[c] = NullIfSentinel(rawRow[c])
	}
	var sum float64
	var n int
	for _, c := range cols {
		if v, ok := dataset.Float(cleaned, c); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return sum / float64(n)
}
