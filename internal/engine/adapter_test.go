// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/docmark/pkg/types"
)

// fakeBackend implements Converter for testing. It returns canned Markdown
// or an error, depending on configuration.
type fakeBackend struct {
	output string
	err    error
	upload bool
}

func (f *fakeBackend) Convert(ctx context.Context, inputPath string, progress ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

func (f *fakeBackend) UploadPhase() bool { return f.upload }

func testAdapter(backend Converter, frontmatter bool) *Adapter {
	return newAdapter(backend, types.EngineConfig{Frontmatter: frontmatter}, nil)
}

// setupInput creates a temporary docx file and returns its path plus an
// output path in a sibling directory that does not exist yet.
func setupInput(t *testing.T) (inputPath, outputPath string) {
	t.Helper()
	dir := t.TempDir()
	inputPath = filepath.Join(dir, "report.docx")
	if err := os.WriteFile(inputPath, []byte("fake docx"), 0o644); err != nil {
		t.Fatal(err)
	}
	outputPath = filepath.Join(dir, "out", "t1", "report.md")
	return inputPath, outputPath
}

func TestAdapterConvertSuccess(t *testing.T) {
	inputPath, outputPath := setupInput(t)
	a := testAdapter(&fakeBackend{output: "# Quarterly Report\n\nRevenue grew."}, false)

	out, err := a.Convert(context.Background(), Job{
		TaskID:      "t1",
		InputPath:   inputPath,
		DisplayName: "report.docx",
		OutputPath:  outputPath,
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.OutputPath != outputPath {
		t.Errorf("OutputPath = %q, want %q", out.OutputPath, outputPath)
	}
	if out.Metadata.Title != "Quarterly Report" {
		t.Errorf("Title = %q", out.Metadata.Title)
	}
	if out.Metadata.WordCount == 0 {
		t.Error("WordCount = 0, want > 0")
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Quarterly Report") {
		t.Errorf("output content = %q", string(data))
	}
}

func TestAdapterFrontmatter(t *testing.T) {
	inputPath, outputPath := setupInput(t)
	a := testAdapter(&fakeBackend{output: "body text"}, true)

	if _, err := a.Convert(context.Background(), Job{
		TaskID:     "t2",
		InputPath:  inputPath,
		OutputPath: outputPath,
	}); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	data, _ := os.ReadFile(outputPath)
	content := string(data)
	if !strings.HasPrefix(content, "---\n") {
		t.Fatalf("missing frontmatter: %q", content)
	}
	for _, want := range []string{`source: "report.docx"`, `task_id: "t2"`, "converted_at:"} {
		if !strings.Contains(content, want) {
			t.Errorf("frontmatter missing %q", want)
		}
	}
}

func TestAdapterErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		job      func(t *testing.T) Job
		backend  *fakeBackend
		wantKind error
	}{
		{
			name: "unsupported extension",
			job: func(t *testing.T) Job {
				inputPath, outputPath := setupInput(t)
				return Job{InputPath: inputPath, DisplayName: "bad.xyz", OutputPath: outputPath}
			},
			backend:  &fakeBackend{output: "never called"},
			wantKind: ErrUnsupportedFormat,
		},
		{
			name: "missing input",
			job: func(t *testing.T) Job {
				_, outputPath := setupInput(t)
				return Job{InputPath: filepath.Join(t.TempDir(), "gone.docx"), OutputPath: outputPath}
			},
			backend:  &fakeBackend{output: "never called"},
			wantKind: ErrIO,
		},
		{
			name: "invocation failure",
			job: func(t *testing.T) Job {
				inputPath, outputPath := setupInput(t)
				return Job{InputPath: inputPath, OutputPath: outputPath}
			},
			backend:  &fakeBackend{err: invocationErr("container crashed")},
			wantKind: ErrInvocation,
		},
		{
			name: "empty output",
			job: func(t *testing.T) Job {
				inputPath, outputPath := setupInput(t)
				return Job{InputPath: inputPath, OutputPath: outputPath}
			},
			backend:  &fakeBackend{output: "  \n\t "},
			wantKind: ErrMalformedOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAdapter(tt.backend, false)
			_, err := a.Convert(context.Background(), tt.job(t))
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("Convert error = %v, want kind %v", err, tt.wantKind)
			}
		})
	}
}

func invocationErr(msg string) error {
	return errors.Join(ErrInvocation, errors.New(msg))
}

func TestAdapterCancellation(t *testing.T) {
	inputPath, outputPath := setupInput(t)
	a := testAdapter(&fakeBackend{output: "body"}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Convert(ctx, Job{InputPath: inputPath, OutputPath: outputPath})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Convert on cancelled context = %v, want context.Canceled", err)
	}
}

func TestAdapterScratchCleanup(t *testing.T) {
	inputPath, outputPath := setupInput(t)
	a := testAdapter(&fakeBackend{output: "# Done"}, false)

	if _, err := a.Convert(context.Background(), Job{
		TaskID:     "t3",
		InputPath:  inputPath,
		OutputPath: outputPath,
	}); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(outputPath))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".docmark-") {
			t.Errorf("scratch file left behind: %s", e.Name())
		}
	}
}

func TestAdapterProgressSequence(t *testing.T) {
	inputPath, outputPath := setupInput(t)
	a := testAdapter(&fakeBackend{output: "body"}, false)

	var fractions []float64
	_, err := a.Convert(context.Background(), Job{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Progress: func(phase Phase, frac float64) {
			if phase != PhaseConvert {
				t.Errorf("unexpected phase %s for local backend", phase)
			}
			fractions = append(fractions, frac)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fractions) < 2 || fractions[0] != 0 || fractions[len(fractions)-1] != 1 {
		t.Errorf("progress fractions = %v, want 0 ... 1", fractions)
	}
}

func TestAdapterUploadPhaseDetection(t *testing.T) {
	if testAdapter(&fakeBackend{}, false).HasUploadPhase() {
		t.Error("local backend reported an upload phase")
	}
	if !testAdapter(&fakeBackend{upload: true}, false).HasUploadPhase() {
		t.Error("uploading backend not detected")
	}
}
