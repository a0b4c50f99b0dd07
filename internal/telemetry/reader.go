package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Table is a recorded run read back from disk. Columns holds the final set
// of names; rows written before a column existed read NaN in it.
type Table struct {
	Version string
	Start   time.Time
	Columns []string
	Rows    [][]float64
}

// Column returns one column by case-insensitive name.
func (t *Table) Column(name string) ([]float64, bool) {
	idx := -1
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		} else {
			out[i] = math.NaN()
		}
	}
	return out, true
}

func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses a recorder file. Non-numeric cells read as NaN.
func Read(src io.Reader) (*Table, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read telemetry: %w", err)
	}
	if len(records) < 3 || len(records[0]) == 0 || records[0][0] != Title {
		return nil, fmt.Errorf("read telemetry: missing %q header", Title)
	}

	t := &Table{}
	if len(records[1]) > 1 {
		t.Version = records[1][1]
	}
	if len(records[2]) > 1 {
		ms, err := strconv.ParseInt(records[2][1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("read telemetry: bad start time %q: %w", records[2][1], err)
		}
		t.Start = time.UnixMilli(ms)
	}

	for _, rec := range records[3:] {
		row, numeric := parseRow(rec)
		if !numeric {
			// names only ever grow, so the latest names row covers every row
			t.Columns = rec
			continue
		}
		if t.Columns == nil {
			return nil, fmt.Errorf("read telemetry: data row before column names")
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func parseRow(rec []string) ([]float64, bool) {
	row := make([]float64, len(rec))
	numeric := false
	for i, cell := range rec {
		switch cell {
		case "true":
			row[i] = 1
			continue
		case "false":
			row[i] = 0
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			row[i] = math.NaN()
			continue
		}
		row[i] = v
		numeric = true
	}
	return row, numeric
}
