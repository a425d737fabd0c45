package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/meziane/drclone/internal/clone"
	"github.com/meziane/drclone/internal/remote"
)

const RecordFilename = "last_run.json"

// RunRecord is the persisted summary of one invocation, written next to
// the per-day logs and attached to the operator report.
type RunRecord struct {
	RunID             string                  `json:"run_id"`
	Flow              string                  `json:"flow"`
	Outcome           string                  `json:"outcome"`
	Severity          string                  `json:"severity"`
	StartedAt         time.Time               `json:"started_at"`
	CompletedAt       time.Time               `json:"completed_at"`
	Duration          time.Duration           `json:"duration_ns"`
	ArtifactPath      string                  `json:"artifact_path,omitempty"`
	ArtifactSizeBytes int64                   `json:"artifact_size_bytes,omitempty"`
	Steps             []clone.StepResult      `json:"steps,omitempty"`
	Transfers         []remote.TransferResult `json:"transfers,omitempty"`
	FreeBytesAfter    uint64                  `json:"free_bytes_after,omitempty"`
}

// Write stores the record under dirPath.
func (r *RunRecord) Write(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("ensure record directory %q: %w", dirPath, err)
	}

	filePath := filepath.Join(dirPath, RecordFilename)
	jsonFile, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create record file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("encode record JSON: %w", err)
	}
	return nil
}

// Load reads a previously written record.
func (r *RunRecord) Load(dirPath string) error {
	filePath := filepath.Join(dirPath, RecordFilename)
	jsonFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open record file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	if err := json.NewDecoder(jsonFile).Decode(r); err != nil {
		return fmt.Errorf("decode record JSON: %w", err)
	}
	return nil
}
