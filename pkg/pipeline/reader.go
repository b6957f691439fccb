package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/riskwise-ai/platform/pkg/dataset"
	"github.com/riskwise-ai/platform/pkg/standardize"
)

// TableReader supplies one raw survey table per named source table.
type TableReader interface {
	ReadTable(name string) (*dataset.Table, error)
}

// CSVReader reads raw tables from <dir>/<NAME>.csv. The first row is the
// header; empty cells and "." are null; numeric cells become float64.
type CSVReader struct {
	dir string
}

func NewCSVReader(dir string) *CSVReader {
	return &CSVReader{dir: dir}
}

func (r *CSVReader) ReadTable(name string) (*dataset.Table, error) {
	path := filepath.Join(r.dir, fmt.Sprintf("%s.csv", name))
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open raw table %s: %w", name, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read raw table %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("raw table %s is empty", name)
	}

	header := records[0]
	key := header[0]
	for _, col := range header {
		if col == standardize.SubjectKey {
			key = col
			break
		}
	}

	table := &dataset.Table{Name: name, Key: key, Columns: header}
	for _, record := range records[1:] {
		row := make(dataset.Row, len(header))
		for i, col := range header {
			if i >= len(record) {
				row[col] = nil
				continue
			}
			row[col] = parseCell(record[i])
		}
		table.Append(row)
	}
	return table, nil
}

func parseCell(cell string) interface{} {
	if cell == "" || cell == "." {
		return nil
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}
