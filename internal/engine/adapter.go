// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/docmark/internal/container"
	"github.com/pdiddy/docmark/pkg/types"
)

// Job describes one conversion for the adapter.
type Job struct {
	// TaskID namespaces scratch files and frontmatter.
	TaskID string

	// InputPath is the source document on disk.
	InputPath string

	// DisplayName is the user-facing file name. Format support is decided
	// from its extension. Defaults to the input path's base name.
	DisplayName string

	// OutputPath is where the Markdown artifact is written. The adapter
	// creates the parent directory.
	OutputPath string

	// Progress receives phase progress. May be nil.
	Progress ProgressFunc
}

// Outcome is the result of a successful conversion.
type Outcome struct {
	OutputPath string
	Metadata   types.DocumentMetadata
}

// Adapter drives a Converter backend for exactly one input at a time. It
// guarantees the output directory exists before the engine writes, removes
// scratch files on every exit path, bounds each invocation with a timeout,
// and classifies failures. It performs no retries; retry policy belongs to
// the orchestrator.
type Adapter struct {
	backend     Converter
	timeout     time.Duration
	frontmatter bool
	uploadPhase bool
	logger      *slog.Logger
}

// NewAdapter builds an adapter with the backend selected by configuration.
func NewAdapter(cfg types.EngineConfig, logger *slog.Logger) (*Adapter, error) {
	var (
		backend Converter
		err     error
	)
	switch cfg.Backend {
	case types.BackendMarkitdown, "":
		var rt container.Runtime
		rt, err = container.DetectRuntime()
		if err == nil {
			backend, err = NewMarkitdownConverter(rt, cfg.Image)
		}
	case types.BackendCLI:
		backend, err = NewCLIConverter(cfg.Binary)
	case types.BackendRemote:
		backend, err = NewRemoteConverter(cfg.RemoteURL, cfg.RemoteToken, 0)
	default:
		err = fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return newAdapter(backend, cfg, logger), nil
}

func newAdapter(backend Converter, cfg types.EngineConfig, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	uploadPhase := false
	if up, ok := backend.(uploadPhaser); ok {
		uploadPhase = up.UploadPhase()
	}
	return &Adapter{
		backend:     backend,
		timeout:     cfg.Timeout,
		frontmatter: cfg.Frontmatter,
		uploadPhase: uploadPhase,
		logger:      logger.With("component", "engine"),
	}
}

// HasUploadPhase reports whether the selected backend transfers input as a
// distinct stage before converting.
func (a *Adapter) HasUploadPhase() bool { return a.uploadPhase }

// Convert runs one conversion end to end: validates the input, invokes the
// backend, and writes the Markdown artifact atomically.
func (a *Adapter) Convert(ctx context.Context, job Job) (*Outcome, error) {
	name := job.DisplayName
	if name == "" {
		name = filepath.Base(job.InputPath)
	}

	if !SupportedPath(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if _, err := os.Stat(job.InputPath); err != nil {
		return nil, fmt.Errorf("%w: input not readable: %w", ErrIO, err)
	}

	outDir := filepath.Dir(job.OutputPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating output directory: %w", ErrIO, err)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	progress := job.Progress
	if progress == nil {
		progress = func(Phase, float64) {}
	}
	if !a.uploadPhase {
		progress(PhaseConvert, 0)
	}

	started := time.Now()
	markdown, err := a.backend.Convert(ctx, job.InputPath, progress)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, a.timeout, name)
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			return nil, err
		}
	}

	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("%w: engine produced empty output for %s", ErrMalformedOutput, name)
	}

	meta := ExtractMetadata(markdown, name)
	content := markdown
	if a.frontmatter {
		content = addFrontmatter(job.TaskID, name, markdown)
	}

	if err := writeAtomic(job.OutputPath, content); err != nil {
		return nil, err
	}
	progress(PhaseConvert, 1)

	a.logger.Debug("conversion finished",
		"task_id", job.TaskID,
		"input", name,
		"output", job.OutputPath,
		"words", meta.WordCount,
		"duration", time.Since(started))

	return &Outcome{OutputPath: job.OutputPath, Metadata: meta}, nil
}

// writeAtomic writes content through a scratch file in the destination
// directory, renaming it into place. The scratch file is removed on every
// exit path; after a successful rename the removal is a no-op.
func writeAtomic(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".docmark-*")
	if err != nil {
		return fmt.Errorf("%w: creating scratch file: %w", ErrIO, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing output: %w", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing output: %w", ErrIO, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("%w: setting output mode: %w", ErrIO, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: placing output: %w", ErrIO, err)
	}
	return nil
}

// addFrontmatter prepends YAML frontmatter to the converted Markdown content.
func addFrontmatter(taskID, source, body string) string {
	ts := time.Now().UTC().Format(time.RFC3339)
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "source: %q\n", source)
	fmt.Fprintf(&b, "task_id: %q\n", taskID)
	fmt.Fprintf(&b, "converted_at: %q\n", ts)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String()
}
