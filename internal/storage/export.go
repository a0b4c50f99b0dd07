package storage

import (
	"encoding/json"
	"io"
	"math"
)

type ExportData struct {
	Run    RunMetadata          `json:"run"`
	Start  int64                `json:"start_unix_ms,omitempty"`
	Series map[string][]float64 `json:"series"`
	// Skipped lists columns left out because they hold non-numeric cells.
	Skipped []string `json:"skipped,omitempty"`
}

// ExportJSON writes a run's metadata and numeric telemetry columns as one
// JSON document. A run without telemetry exports metadata only.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	data := ExportData{Run: *meta, Series: map[string][]float64{}}

	if table, err := s.LoadTelemetry(runID); err == nil {
		data.Start = table.Start.UnixMilli()
		for _, name := range table.Columns {
			col, _ := table.Column(name)
			if hasNaN(col) {
				data.Skipped = append(data.Skipped, name)
				continue
			}
			data.Series[name] = col
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
