package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"phi-sanitizer/internal/store"
)

// Outcome values recorded per file in the manifest.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeDryRun  = "dry-run"
)

// Counts summarizes a run.
type Counts struct {
	Found       int `yaml:"found"`
	Succeeded   int `yaml:"succeeded"`
	Failed      int `yaml:"failed"`
	Skipped     int `yaml:"skipped"`
	PHIReplaced int `yaml:"phi_replaced"`
}

// FileOutcome is the manifest record of one input file.
type FileOutcome struct {
	Input    string `yaml:"input"`
	Output   string `yaml:"output,omitempty"`
	Outcome  string `yaml:"outcome"`
	Type     string `yaml:"type,omitempty"`
	PHICount int    `yaml:"phi_count"`
	Error    string `yaml:"error,omitempty"`
}

// Manifest describes one batch run. It never holds original values.
type Manifest struct {
	RunID      string        `yaml:"run_id"`
	Format     string        `yaml:"format"`
	InputDir   string        `yaml:"input_dir"`
	OutputDir  string        `yaml:"output_dir"`
	DryRun     bool          `yaml:"dry_run"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at"`
	Counts     Counts        `yaml:"counts"`
	Store      *store.Stats  `yaml:"store,omitempty"`
	Files      []FileOutcome `yaml:"files"`
}

// NewManifest starts a manifest with a fresh run id.
func NewManifest(format, inputDir, outputDir string, dryRun bool) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		Format:    format,
		InputDir:  inputDir,
		OutputDir: outputDir,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
}

// Add records one file and updates the counts.
func (m *Manifest) Add(o FileOutcome) {
	m.Files = append(m.Files, o)
	switch o.Outcome {
	case OutcomeSuccess, OutcomeDryRun:
		m.Counts.Succeeded++
		m.Counts.PHIReplaced += o.PHICount
	case OutcomeFailed:
		m.Counts.Failed++
	case OutcomeSkipped:
		m.Counts.Skipped++
	}
}

// FileName is the manifest's name inside the logs directory.
func (m *Manifest) FileName() string {
	return "run_manifest_" + m.RunID + ".yaml"
}

// Write stamps the finish time and writes the manifest into dir.
func (m *Manifest) Write(dir string) (string, error) {
	m.FinishedAt = time.Now()

	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create manifest directory: %w", err)
	}
	path := filepath.Join(dir, m.FileName())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
