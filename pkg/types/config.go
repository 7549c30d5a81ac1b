// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// EngineBackend identifies the conversion engine implementation.
type EngineBackend string

const (
	// BackendMarkitdown pipes documents through the markitdown container
	// image via docker or podman.
	BackendMarkitdown EngineBackend = "markitdown"

	// BackendCLI invokes a markitdown executable found on PATH.
	BackendCLI EngineBackend = "cli"

	// BackendRemote uploads documents to a markitdown HTTP service.
	BackendRemote EngineBackend = "remote"
)

// EngineConfig holds settings for the conversion engine adapter.
type EngineConfig struct {
	// Backend selects the engine implementation: markitdown, cli, or remote.
	Backend EngineBackend `json:"backend" yaml:"backend"`

	// Image is the container image used by the markitdown backend.
	Image string `json:"image" yaml:"image"`

	// Binary is the executable name used by the cli backend.
	Binary string `json:"binary" yaml:"binary"`

	// RemoteURL is the base URL of the conversion service used by the
	// remote backend.
	RemoteURL string `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`

	// RemoteToken authenticates requests to the conversion service.
	// Usually loaded from .secrets/remote-token rather than config.
	RemoteToken string `json:"remote_token,omitempty" yaml:"remote_token,omitempty"`

	// Timeout bounds a single engine invocation, upload included.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Frontmatter controls whether YAML frontmatter (source name, task id,
	// conversion timestamp) is prepended to the Markdown output.
	Frontmatter bool `json:"frontmatter" yaml:"frontmatter"`
}

// OrchestratorConfig holds settings for batch dispatch and progress.
type OrchestratorConfig struct {
	// OutputDir is the base directory for converted Markdown. Each task
	// writes under a task-id subdirectory so repeated display names never
	// collide.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// MaxConcurrent bounds the number of tasks converting at once.
	// Tasks beyond the bound wait in the queued state. Zero or negative
	// means the default (2).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// MaxRetries is the number of additional engine invocations attempted
	// after a retryable engine failure. Zero disables retry.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// UploadWeight and ConvertWeight split the 0-100 progress scale
	// between the upload and conversion phases for backends with a
	// distinct upload stage. They should sum to 100.
	UploadWeight  int `json:"upload_weight" yaml:"upload_weight"`
	ConvertWeight int `json:"convert_weight" yaml:"convert_weight"`
}

// HistoryConfig holds settings for the durable conversion history.
type HistoryConfig struct {
	// Dir is the directory holding the history database (docmark.db).
	Dir string `json:"dir" yaml:"dir"`

	// Keep caps the number of terminal records retained. Older records
	// are pruned. Zero or negative means the default (500).
	Keep int `json:"keep" yaml:"keep"`
}

// Config groups all component configurations.
type Config struct {
	Engine       EngineConfig       `json:"engine" yaml:"engine"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
	History      HistoryConfig      `json:"history" yaml:"history"`
}

// DefaultConfig returns the configuration used when no file or flags
// override it.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			Backend:     BackendMarkitdown,
			Image:       "markitdown:latest",
			Binary:      "markitdown",
			Timeout:     5 * time.Minute,
			Frontmatter: true,
		},
		Orchestrator: OrchestratorConfig{
			OutputDir:     "output/markdown",
			MaxConcurrent: 2,
			MaxRetries:    0,
			UploadWeight:  30,
			ConvertWeight: 70,
		},
		History: HistoryConfig{
			Dir:  "output",
			Keep: 500,
		},
	}
}
