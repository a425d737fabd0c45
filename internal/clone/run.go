package clone

import (
	"time"

	"github.com/google/uuid"

	"github.com/meziane/drclone/internal/guard"
	"github.com/meziane/drclone/internal/remote"
)

// RunContext carries everything one clone attempt threads through its
// stages. It is populated once at startup from configuration and enriched
// by each gate's output; nothing here survives the process.
type RunContext struct {
	ID         uuid.UUID
	ServerName string
	Artifact   *remote.Artifact
	Transfers  []remote.TransferResult
	Space      guard.SpaceCheckResult
	LogDir     string
	Now        func() time.Time
}

// NewRunContext returns a context with a fresh run ID and real clock.
func NewRunContext(serverName, logDir string) *RunContext {
	return &RunContext{
		ID:         uuid.New(),
		ServerName: serverName,
		LogDir:     logDir,
		Now:        time.Now,
	}
}

func (rc *RunContext) clock() time.Time {
	if rc.Now != nil {
		return rc.Now()
	}
	return time.Now()
}

// StepResult records one state-machine stage for the classifier and the
// operator report.
type StepResult struct {
	StepName string        `json:"step_name"`
	ExitCode int           `json:"exit_code"`
	LogPath  string        `json:"log_path,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// TransactionRun is the record of one restore attempt. Created when the
// transaction starts, appended to by every step, finalized exactly once.
type TransactionRun struct {
	ID         uuid.UUID    `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepResult `json:"steps"`

	RestoreExitCode int `json:"restore_exit_code"`
	// RestoreSpaceExhausted is set when the restore log carries the
	// out-of-space marker, which the tool can emit while still exiting 0.
	RestoreSpaceExhausted bool `json:"restore_space_exhausted"`
	VerifyExitCode        int  `json:"verify_exit_code"`
}

// RestoreSucceeded requires a clean exit and a marker-free log.
func (r *TransactionRun) RestoreSucceeded() bool {
	return r.RestoreExitCode == 0 && !r.RestoreSpaceExhausted
}

// VerifySucceeded is decided by exit code alone.
func (r *TransactionRun) VerifySucceeded() bool {
	return r.VerifyExitCode == 0
}

// Elapsed is the total wall-clock time of the transaction.
func (r *TransactionRun) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
