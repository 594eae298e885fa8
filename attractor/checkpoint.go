// ABOUTME: Checkpoint serialization persisting runner state to a single JSON file for resume.
// ABOUTME: Saved as <logsRoot>/checkpoint.json after each completed node; absent file means a fresh run.
package attractor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// checkpointFileName is the fixed file name under the logs root.
const checkpointFileName = "checkpoint.json"

// graphSourceFileName is the file the run's DOT source is saved under so a
// resume needs only the logs root.
const graphSourceFileName = "graph.dot"

// Checkpoint is a serializable snapshot of traversal state.
type Checkpoint struct {
	Timestamp      time.Time      `json:"timestamp"`
	CurrentNode    string         `json:"currentNode"`
	CompletedNodes []string       `json:"completedNodes"`
	NodeRetries    map[string]int `json:"nodeRetries"`
	Context        map[string]any `json:"context"`
	Logs           []string       `json:"logs"`
}

// NewCheckpoint captures the current traversal state.
func NewCheckpoint(ctx *Context, currentNode string, completedNodes []string, nodeRetries map[string]int) *Checkpoint {
	retries := make(map[string]int, len(nodeRetries))
	for k, v := range nodeRetries {
		retries[k] = v
	}
	return &Checkpoint{
		Timestamp:      time.Now().UTC(),
		CurrentNode:    currentNode,
		CompletedNodes: append([]string(nil), completedNodes...),
		NodeRetries:    retries,
		Context:        ctx.Snapshot(),
		Logs:           ctx.Logs(),
	}
}

// CheckpointPath returns the checkpoint file path for a logs root.
func CheckpointPath(logsRoot string) string {
	return filepath.Join(logsRoot, checkpointFileName)
}

// GraphSourcePath returns the saved graph source path for a logs root.
func GraphSourcePath(logsRoot string) string {
	return filepath.Join(logsRoot, graphSourceFileName)
}

// SaveGraphSource writes the run's DOT source under the logs root.
func SaveGraphSource(logsRoot, source string) error {
	if err := os.MkdirAll(logsRoot, 0o755); err != nil {
		return &CodedError{Code: CodeCheckpointWrite, Msg: "create logs root", Err: err}
	}
	if err := os.WriteFile(GraphSourcePath(logsRoot), []byte(source), 0o644); err != nil {
		return &CodedError{Code: CodeCheckpointWrite, Msg: "write graph source", Err: err}
	}
	return nil
}

// LoadGraphSource reads the DOT source saved by a previous run.
func LoadGraphSource(logsRoot string) (string, error) {
	data, err := os.ReadFile(GraphSourcePath(logsRoot))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Save writes the checkpoint atomically: a temp file in the same directory
// renamed over the target.
func (cp *Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return &CodedError{Code: CodeCheckpointWrite, Msg: "encode checkpoint", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &CodedError{Code: CodeCheckpointWrite, Msg: "create checkpoint dir", Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &CodedError{Code: CodeCheckpointWrite, Msg: "write checkpoint", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &CodedError{Code: CodeCheckpointWrite, Msg: "rename checkpoint", Err: err}
	}
	return nil
}

// LoadCheckpoint reads a checkpoint file. A missing file returns (nil, nil)
// so callers treat it as a fresh run.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
