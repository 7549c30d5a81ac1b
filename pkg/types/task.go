// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a conversion task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "uploaded"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusUploading,
	StatusUploaded,
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// statusRank orders non-terminal states along the forward path. Terminal
// states share the highest rank; transitions between them are rejected by
// CanTransition before rank is consulted.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusUploading:  1,
	StatusUploaded:   2,
	StatusQueued:     3,
	StatusProcessing: 4,
	StatusCompleted:  5,
	StatusFailed:     5,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusRank[normalized]; !ok {
		return "", false
	}
	return normalized, true
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a task may move from s to next. Forward
// moves may skip intermediate states (a local task goes pending -> queued
// without an upload phase), any non-terminal state may fail, and completed
// is only reachable from processing.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	if next == StatusCompleted {
		return s == StatusProcessing
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// DocumentMetadata describes a successfully converted document. Populated
// by the engine adapter from the Markdown output.
type DocumentMetadata struct {
	// Title is the first ATX heading of the output, or the display name
	// stem when the document has no heading.
	Title string `json:"title" yaml:"title"`

	// WordCount is the number of whitespace-separated words in the output.
	WordCount int `json:"word_count" yaml:"word_count"`

	// CharCount is the number of characters in the output.
	CharCount int `json:"char_count" yaml:"char_count"`
}

// TaskRecord tracks one file's conversion from submission to terminal
// outcome. Records are owned by the orchestrator; every other component
// only ever sees value copies (see Clone).
type TaskRecord struct {
	// ID is the unique task identifier, assigned at creation and never
	// reused. It joins submission, progress events, and output fetch.
	ID string `json:"id" yaml:"id"`

	// InputRef is the locator for the source document.
	InputRef string `json:"input_ref" yaml:"input_ref"`

	// OutputRef is the locator for the produced Markdown artifact.
	// Set if and only if Status is completed.
	OutputRef string `json:"output_ref,omitempty" yaml:"output_ref,omitempty"`

	// DisplayName is the original file name, used for status lines and
	// for deriving OutputName.
	DisplayName string `json:"display_name" yaml:"display_name"`

	// OutputName is DisplayName with its final extension replaced by .md.
	OutputName string `json:"output_name" yaml:"output_name"`

	// SizeBytes is the input size. Informational only.
	SizeBytes int64 `json:"size_bytes" yaml:"size_bytes"`

	// Status is the task's position in the lifecycle state machine.
	Status Status `json:"status" yaml:"status"`

	// ProgressPercent is the unified 0-100 progress value. Monotonic
	// non-decreasing while the task is non-terminal.
	ProgressPercent int `json:"progress_percent" yaml:"progress_percent"`

	// ErrorDetail explains a failure. Set if and only if Status is failed.
	ErrorDetail string `json:"error_detail,omitempty" yaml:"error_detail,omitempty"`

	// Metadata is set if and only if Status is completed.
	Metadata *DocumentMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Attempts counts engine invocations, including retries.
	Attempts int `json:"attempts" yaml:"attempts"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy safe to hand to observers.
func (r TaskRecord) Clone() TaskRecord {
	cp := r
	if r.Metadata != nil {
		meta := *r.Metadata
		cp.Metadata = &meta
	}
	return cp
}

// Aggregate holds per-status task counts, derived by counting current
// records. It is a projection, never separately maintained state.
type Aggregate struct {
	Total      int `json:"total" yaml:"total"`
	Pending    int `json:"pending" yaml:"pending"`
	Uploading  int `json:"uploading" yaml:"uploading"`
	Uploaded   int `json:"uploaded" yaml:"uploaded"`
	Queued     int `json:"queued" yaml:"queued"`
	Processing int `json:"processing" yaml:"processing"`
	Completed  int `json:"completed" yaml:"completed"`
	Failed     int `json:"failed" yaml:"failed"`
}

// Add counts one record with the given status.
func (a *Aggregate) Add(s Status) {
	a.Total++
	switch s {
	case StatusPending:
		a.Pending++
	case StatusUploading:
		a.Uploading++
	case StatusUploaded:
		a.Uploaded++
	case StatusQueued:
		a.Queued++
	case StatusProcessing:
		a.Processing++
	case StatusCompleted:
		a.Completed++
	case StatusFailed:
		a.Failed++
	}
}
