// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package manifest reads and writes YAML batch files. A manifest lists the
// documents to convert plus per-batch options; after a run the per-file
// outcomes and a summary are written back, so the file doubles as a batch
// report.
package manifest

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/docmark/pkg/types"
)

// Manifest is the on-disk representation of a batch and its results.
type Manifest struct {
	Files   []FileEntry `yaml:"files"`
	Options Options     `yaml:"options"`
	Summary *Summary    `yaml:"summary,omitempty"`
}

// FileEntry is one document in the batch. The result fields are empty
// until the batch has run.
type FileEntry struct {
	Path string `yaml:"path"`
	Name string `yaml:"name,omitempty"`

	TaskID string `yaml:"task_id,omitempty"`
	Status string `yaml:"status,omitempty"`
	Output string `yaml:"output,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Options stores batch-level settings. Unset fields fall back to the
// loaded configuration.
type Options struct {
	Backend       string `yaml:"backend,omitempty"`
	OutputDir     string `yaml:"output_dir,omitempty"`
	MaxConcurrent int    `yaml:"max_concurrent,omitempty"`
	MaxRetries    int    `yaml:"max_retries,omitempty"`
}

// Summary stores batch statistics and a timestamp.
type Summary struct {
	Total     int       `yaml:"total"`
	Completed int       `yaml:"completed"`
	Failed    int       `yaml:"failed"`
	Timestamp time.Time `yaml:"timestamp"`
}

// Read loads a manifest from disk.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("manifest %s lists no files", path)
	}
	return &m, nil
}

// Write saves the manifest, results included.
func (m *Manifest) Write(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyOptions overlays the manifest's batch options onto cfg.
func (m *Manifest) ApplyOptions(cfg *types.Config) {
	if m.Options.Backend != "" {
		cfg.Engine.Backend = types.EngineBackend(m.Options.Backend)
	}
	if m.Options.OutputDir != "" {
		cfg.Orchestrator.OutputDir = m.Options.OutputDir
	}
	if m.Options.MaxConcurrent > 0 {
		cfg.Orchestrator.MaxConcurrent = m.Options.MaxConcurrent
	}
	if m.Options.MaxRetries > 0 {
		cfg.Orchestrator.MaxRetries = m.Options.MaxRetries
	}
}

// RecordResults fills each file entry from its task record and attaches a
// summary. Records are matched positionally; a batch submission returns
// one record per manifest file in order.
func (m *Manifest) RecordResults(recs []types.TaskRecord) {
	summary := &Summary{Total: len(recs), Timestamp: time.Now()}
	for i := range m.Files {
		if i >= len(recs) {
			break
		}
		rec := recs[i]
		m.Files[i].TaskID = rec.ID
		m.Files[i].Status = string(rec.Status)
		m.Files[i].Output = rec.OutputRef
		m.Files[i].Error = rec.ErrorDetail
		switch rec.Status {
		case types.StatusCompleted:
			summary.Completed++
		case types.StatusFailed:
			summary.Failed++
		}
	}
	m.Summary = summary
}
