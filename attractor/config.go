// ABOUTME: YAML run configuration for the CLI: logs root, artifact dir, retries, variables, monitor port.
// ABOUTME: Values map onto EngineConfig; the zero value is a usable default.
package attractor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RunConfig is the YAML-serializable configuration for a pipeline run.
type RunConfig struct {
	LogsRoot    string            `yaml:"logs_root"`
	ArtifactDir string            `yaml:"artifact_dir"`
	RetryPreset string            `yaml:"retry_preset"` // none|standard|aggressive|linear|patient
	Vars        map[string]string `yaml:"vars"`
	MonitorAddr string            `yaml:"monitor_addr"` // e.g. ":8722"; empty disables the monitor
	EventDB     string            `yaml:"event_db"`     // SQLite event database path; empty uses JSONL files
	MaxParallel int               `yaml:"max_parallel"`
	Tracing     bool              `yaml:"tracing"`
}

// LoadRunConfig reads a YAML run configuration. An empty path returns the
// zero config; a path naming a file that does not exist is an error.
func LoadRunConfig(path string) (*RunConfig, error) {
	if path == "" {
		return &RunConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config: %w", err)
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse run config: %w", err)
	}
	return &cfg, nil
}

// EngineConfig converts the run configuration into an engine configuration.
func (c *RunConfig) EngineConfig() EngineConfig {
	cfg := EngineConfig{
		LogsRoot:     c.LogsRoot,
		ArtifactDir:  c.ArtifactDir,
		VarOverrides: c.Vars,
		RetryPreset:  c.RetryPreset,
		MaxParallel:  c.MaxParallel,
	}
	if c.Tracing {
		cfg.Spans = NewSpanManager()
	}
	return cfg
}
