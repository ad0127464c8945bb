// Package storage persists episode runs: metadata as JSON, joint
// trajectories as CSV, one directory per run.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
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
	ID          string             `json:"id"`
	Task        string             `json:"task"`
	Timestamp   time.Time          `json:"timestamp"`
	Seed        int64              `json:"seed"`
	Timestep    float64            `json:"timestep"`
	ControlFreq float64            `json:"control_freq"`
	Steps       int                `json:"steps"`
	IKMisses    int                `json:"ik_misses"`
	Metrics     map[string]float64 `json:"metrics"`
}

// EpisodeRecord is one episode's trajectory.
type EpisodeRecord struct {
	Times   []float64
	States  [][]float64
	Rewards []float64
}

func (s *Store) Save(meta RunMetadata, rec *EpisodeRecord) (string, error) {
	runID := fmt.Sprintf("%s_%d", meta.Task, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	meta.ID = runID
	meta.Timestamp = time.Now()
	meta.Steps = len(rec.Times)

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "states.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if len(rec.States) == 0 {
		return runID, nil
	}
	header := []string{"time"}
	for i := range rec.States[0] {
		header = append(header, fmt.Sprintf("q%d", i))
	}
	header = append(header, "reward")
	if err := w.Write(header); err != nil {
		return "", err
	}
	for i, t := range rec.Times {
		row := []string{strconv.FormatFloat(t, 'g', -1, 64)}
		for _, v := range rec.States[i] {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		reward := 0.0
		if i < len(rec.Rewards) {
			reward = rec.Rewards[i]
		}
		row = append(row, strconv.FormatFloat(reward, 'g', -1, 64))
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	return runID, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []RunMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) Load(runID string) (RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return RunMetadata{}, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return RunMetadata{}, err
	}
	return meta, nil
}

// LoadStates reads back a run's trajectory, one column slice per state
// dimension, for plotting.
func (s *Store) LoadStates(runID string) (times []float64, cols [][]float64, err error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("run %s has no samples", runID)
	}
	nCols := len(rows[0]) - 1
	cols = make([][]float64, nCols)
	for _, row := range rows[1:] {
		t, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, nil, err
		}
		times = append(times, t)
		for i := 0; i < nCols && i+1 < len(row); i++ {
			v, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return nil, nil, err
			}
			cols[i] = append(cols[i], v)
		}
	}
	return times, cols, nil
}
