// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine wraps the opaque document-to-Markdown conversion
// capability behind a uniform adapter. Backends (markitdown container,
// markitdown CLI, remote service) implement the Converter interface; the
// Adapter owns output writing, scratch cleanup, timeouts, and error
// classification. See docs/ARCHITECTURE § Engine Backends.
package engine

import (
	"context"
	"errors"
)

// Phase identifies which stage of a conversion a progress report covers.
type Phase string

const (
	// PhaseUpload covers input transfer to a remote engine. Only reported
	// by backends with a distinct upload stage.
	PhaseUpload Phase = "upload"

	// PhaseConvert covers the conversion itself.
	PhaseConvert Phase = "convert"
)

// ProgressFunc receives phase progress as a fraction in [0, 1]. Calls must
// be cheap; the engine invokes it inline.
type ProgressFunc func(phase Phase, fraction float64)

// Converter transforms one document into Markdown text. Implementations
// must honor ctx cancellation and may report progress through the callback
// (nil-safe handling is the Adapter's job; backends receive a non-nil func).
type Converter interface {
	Convert(ctx context.Context, inputPath string, progress ProgressFunc) (string, error)
}

// uploadPhaser is implemented by backends whose conversion includes a
// distinct input-transfer stage.
type uploadPhaser interface {
	UploadPhase() bool
}

// Error classification markers. Wrap engine failures with one of these so
// the orchestrator can decide on retry and the task record carries a
// meaningful error detail.
var (
	// ErrUnsupportedFormat marks inputs the engine cannot handle. Detected
	// before any engine invocation.
	ErrUnsupportedFormat = errors.New("unsupported input format")

	// ErrInvocation marks engine invocation failures (non-zero exit,
	// crashed container, rejected request).
	ErrInvocation = errors.New("engine invocation failed")

	// ErrMalformedOutput marks unusable engine output (empty or
	// whitespace-only Markdown).
	ErrMalformedOutput = errors.New("malformed engine output")

	// ErrIO marks failures reading the input or writing the output.
	ErrIO = errors.New("i/o failure")

	// ErrTimeout marks invocations that exceeded the configured deadline.
	ErrTimeout = errors.New("engine timeout")
)

// Retryable reports whether a conversion failure may succeed on a fresh
// invocation. Unsupported inputs and I/O problems are deterministic;
// invocation failures and timeouts are not.
func Retryable(err error) bool {
	return errors.Is(err, ErrInvocation) || errors.Is(err, ErrTimeout)
}
