// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// cliExecutor abstracts command execution for testing.
type cliExecutor interface {
	LookPath(file string) (string, error)
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// osCLIExecutor is the production executor backed by os/exec.
type osCLIExecutor struct{}

func (o *osCLIExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osCLIExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// CLIConverter converts documents by invoking a markitdown executable on
// PATH. For deployments without a container runtime.
type CLIConverter struct {
	bin  string
	exec cliExecutor
}

// NewCLIConverter creates a converter around the named executable,
// verifying it is resolvable before returning.
func NewCLIConverter(bin string) (*CLIConverter, error) {
	return newCLIConverter(bin, &osCLIExecutor{})
}

func newCLIConverter(bin string, exec cliExecutor) (*CLIConverter, error) {
	if bin == "" {
		bin = "markitdown"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("markitdown executable not found: %w", err)
	}
	return &CLIConverter{bin: bin, exec: exec}, nil
}

// Convert runs the executable against inputPath and returns its stdout as
// Markdown text.
func (c *CLIConverter) Convert(ctx context.Context, inputPath string, progress ProgressFunc) (string, error) {
	out, err := c.exec.Output(ctx, c.bin, inputPath)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s %s: %w", ErrInvocation, c.bin, inputPath, err)
	}
	return string(out), nil
}
