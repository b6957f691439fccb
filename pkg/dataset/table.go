package dataset

import (
	"fmt"
	"strconv"
)

// Row is one subject's record. A nil or absent value means the measurement
// is missing; consumers must treat both the same way.
type Row map[string]interface{}

// Table is an ordered-column collection of rows keyed by a subject column.
type Table struct {
	Name    string
	Key     string
	Columns []string
	Rows    []Row
}

func New(name, key string, columns []string) *Table {
	cols := make([]string, 0, len(columns)+1)
	cols = append(cols, key)
	for _, c := range columns {
		if c != key {
			cols = append(cols, c)
		}
	}
	return &Table{Name: name, Key: key, Columns: cols}
}

func (t *Table) Append(row Row) {
	t.Rows = append(t.Rows, row)
}

func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn registers a column name without touching existing rows.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// DuplicateKeyError reports a table that violates the one-row-per-subject
// invariant. The run must abort; it is ambiguous which row is correct.
type DuplicateKeyError struct {
	Table string
	Key   string
	Value string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("table %s has duplicate subject key %s=%s; aggregate rows before joining", e.Table, e.Key, e.Value)
}

// keyIndex maps subject key to row position, failing on duplicates.
func (t *Table) keyIndex() (map[string]int, error) {
	index := make(map[string]int, len(t.Rows))
	for i, row := range t.Rows {
		key := KeyString(row[t.Key])
		if key == "" {
			return nil, fmt.Errorf("table %s row %d has empty subject key column %s", t.Name, i, t.Key)
		}
		if _, exists := index[key]; exists {
			return nil, &DuplicateKeyError{Table: t.Name, Key: t.Key, Value: key}
		}
		index[key] = i
	}
	return index, nil
}

// LeftJoin joins other onto base by subject key. Every base row survives
// exactly once; unmatched columns from other are nil. Fails when other has
// more than one row per subject.
func LeftJoin(base, other *Table) (*Table, error) {
	if base.Key != other.Key {
		return nil, fmt.Errorf("join key mismatch: %s uses %s, %s uses %s", base.Name, base.Key, other.Name, other.Key)
	}

	otherIndex, err := other.keyIndex()
	if err != nil {
		return nil, err
	}

	joined := &Table{Name: base.Name, Key: base.Key}
	joined.Columns = append(joined.Columns, base.Columns...)
	var extraCols []string
	for _, c := range other.Columns {
		if c != other.Key && !base.HasColumn(c) {
			extraCols = append(extraCols, c)
		}
	}
	joined.Columns = append(joined.Columns, extraCols...)

	joined.Rows = make([]Row, 0, len(base.Rows))
	for _, baseRow := range base.Rows {
		row := make(Row, len(joined.Columns))
		for k, v := range baseRow {
			row[k] = v
		}
		if pos, ok := otherIndex[KeyString(baseRow[base.Key])]; ok {
			otherRow := other.Rows[pos]
			for _, c := range extraCols {
				row[c] = otherRow[c]
			}
		} else {
			for _, c := range extraCols {
				row[c] = nil
			}
		}
		joined.Rows = append(joined.Rows, row)
	}
	return joined, nil
}

// MeanOfReadings averages repeated readings (e.g. blood-pressure cuffs) into
// one derived column per subject. Rows with no readings get nil, never zero.
func (t *Table) MeanOfReadings(readingCols []string, out string) {
	t.AddColumn(out)
	for _, row := range t.Rows {
		var sum float64
		var n int
		for _, c := range readingCols {
			if v, ok := Float(row, c); ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			row[out] = nil
		} else {
			row[out] = sum / float64(n)
		}
	}
}

// AddPresenceFlag records whether a column is non-null per row.
func (t *Table) AddPresenceFlag(col, out string) {
	t.AddColumn(out)
	for _, row := range t.Rows {
		_, present := row[col]
		row[out] = present && row[col] != nil
	}
}

// Missingness returns the null fraction per column.
func (t *Table) Missingness() map[string]float64 {
	report := make(map[string]float64, len(t.Columns))
	if len(t.Rows) == 0 {
		return report
	}
	for _, c := range t.Columns {
		missing := 0
		for _, row := range t.Rows {
			if v, ok := row[c]; !ok || v == nil {
				missing++
			}
		}
		report[c] = float64(missing) / float64(len(t.Rows))
	}
	return report
}

// Float extracts a numeric value from a row. Missing, nil, or non-numeric
// values report false.
func Float(row Row, key string) (float64, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}

// String extracts a string value from a row; missing or nil reports false.
func String(row Row, key string) (string, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// KeyString canonicalizes a subject key so numeric and string-typed keys
// from different readers compare equal.
func KeyString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}
