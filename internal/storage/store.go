// Package storage archives finished missions: one directory per run holding
// its metadata and the recorded telemetry.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/san-kum/buoysim/internal/mission"
	"github.com/san-kum/buoysim/internal/telemetry"
)

var ErrNoRun = errors.New("storage: no such run")

const (
	metadataFile  = "metadata.json"
	telemetryFile = "telemetry.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID               string             `json:"id"`
	Preset           string             `json:"preset,omitempty"`
	Timestamp        time.Time          `json:"timestamp"`
	TargetDepth      float64            `json:"target_depth"`
	CommandedEngines int                `json:"commanded_engines"`
	SpeedMetric      string             `json:"speed_metric"`
	Sensor           string             `json:"sensor"`
	Elapsed          float64            `json:"elapsed"`
	Ticks            uint64             `json:"ticks"`
	FinalDepth       float64            `json:"final_depth"`
	Reached          bool               `json:"reached"`
	Commands         int64              `json:"commands"`
	Metrics          map[string]float64 `json:"metrics"`
}

// Describe fills the outcome fields from a finished mission.
func (m *RunMetadata) Describe(res mission.Result) {
	m.Elapsed = res.Final.Elapsed
	m.Ticks = res.Final.Tick
	m.FinalDepth = res.Final.Depth
	m.Reached = res.Reached
	m.Commands = res.Commands
	m.Metrics = res.Metrics
}

// NewRun creates an empty run directory and returns its ID.
func (s *Store) NewRun(prefix string) (string, error) {
	if prefix == "" {
		prefix = "run"
	}
	runID := fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	if err := os.MkdirAll(filepath.Join(s.baseDir, runID), 0755); err != nil {
		return "", err
	}
	return runID, nil
}

// TelemetryPath is where a run's recorder file belongs.
func (s *Store) TelemetryPath(runID string) string {
	return filepath.Join(s.baseDir, runID, telemetryFile)
}

func (s *Store) Save(meta RunMetadata) error {
	if meta.ID == "" {
		return fmt.Errorf("storage: run metadata without id")
	}
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoRun, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadTelemetry(runID string) (*telemetry.Table, error) {
	table, err := telemetry.ReadFile(s.TelemetryPath(runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s has no telemetry", ErrNoRun, runID)
	}
	return table, err
}
