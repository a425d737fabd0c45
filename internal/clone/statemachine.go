package clone

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meziane/drclone/internal/command"
	"github.com/meziane/drclone/internal/logger"
	"github.com/meziane/drclone/internal/remote"
)

// State enumerates the stages of the restore transaction. The sequence is
// strictly ordered; no stage may be skipped or reordered, and there is no
// branching back.
type State int

const (
	StateIdle State = iota
	StateTorndown
	StateDataWiped
	StateRecreated
	StateAwaitingReady1
	StateWorkersStopped
	StateRestored
	StateReconfigured
	StateRestarting
	StateAwaitingReady2
	StateVerified
	StateTerminal
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateTorndown:       "torndown",
	StateDataWiped:      "data_wiped",
	StateRecreated:      "recreated",
	StateAwaitingReady1: "awaiting_ready_1",
	StateWorkersStopped: "workers_stopped",
	StateRestored:       "restored",
	StateReconfigured:   "reconfigured",
	StateRestarting:     "restarting",
	StateAwaitingReady2: "awaiting_ready_2",
	StateVerified:       "verified",
	StateTerminal:       "terminal",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StepOutcome is what a stage hands the transition function.
type StepOutcome struct {
	ExitCode int
	Failed   bool
}

// Next is the pure transition function. Every stage advances regardless of
// its outcome: tolerated failures are merely recorded, and even a failed
// restore proceeds through verify so the run terminates with a complete
// report instead of a half-finished instance and silence.
func Next(s State, _ StepOutcome) State {
	if s >= StateTerminal {
		return StateTerminal
	}
	return s + 1
}

// Critical reports whether a stage's outcome is load-bearing for the final
// classification.
func Critical(s State) bool {
	return s == StateRestored || s == StateVerified
}

// ErrTransferIncomplete refuses transaction entry when the artifact set is
// not fully on disk. A restore with missing secrets or config produces an
// unusable instance, and the wipe is irreversible without the archive.
var ErrTransferIncomplete = errors.New("transfer incomplete, refusing to start restore transaction")

// ErrSpaceInsufficient refuses transaction entry after a failed space gate.
var ErrSpaceInsufficient = errors.New("insufficient space, refusing to start restore transaction")

// Controller is the slice of the service instance the transaction drives.
type Controller interface {
	Stop(ctx context.Context) (command.Result, error)
	Recreate(ctx context.Context) (command.Result, error)
	StopWorkers(ctx context.Context) (command.Result, error)
	RestoreBackup(ctx context.Context, name, logPath string) (command.Result, error)
	Reconfigure(ctx context.Context, logPath string) (command.Result, error)
	Restart(ctx context.Context) (command.Result, error)
	VerifyChecks(ctx context.Context, logPath string) (command.Result, error)
}

// ReadinessWaiter blocks until the recreated or restarted service is safe
// to use.
type ReadinessWaiter interface {
	Wait(ctx context.Context) error
}

// Transaction executes the ordered destructive sequence of a clone.
type Transaction struct {
	Service   Controller
	Readiness ReadinessWaiter
	Logger    logger.Logger

	DataDir       string
	BackupsSubdir string
	// MarkerPath, when set, is written for the duration of the
	// transaction so the host's reboot guard skips the window.
	MarkerPath string
	// ScanLog detects the out-of-space marker in the restore log.
	ScanLog func(path string) (bool, error)
}

// Run executes the full sequence and returns its record. The returned
// error covers only refused entry; step failures live in the record.
func (t *Transaction) Run(ctx context.Context, rc *RunContext) (*TransactionRun, error) {
	// The single most safety-critical invariant: never wipe unless the
	// space gate and every transfer succeeded for this run.
	if !remote.AllSucceeded(rc.Transfers) {
		return nil, ErrTransferIncomplete
	}
	if !rc.Space.Sufficient {
		return nil, ErrSpaceInsufficient
	}

	run := &TransactionRun{ID: rc.ID, StartedAt: rc.clock()}

	t.holdReboot()
	defer t.releaseReboot()

	day := rc.clock().Format("2006-01-02")
	restoreLog := filepath.Join(rc.LogDir, "restore_"+day+".log")
	reconfigureLog := filepath.Join(rc.LogDir, "reconfigure_"+day+".log")
	verifyLog := filepath.Join(rc.LogDir, "verify_"+day+".log")

	state := StateIdle
	record := func(name, logPath string, res command.Result) {
		run.Steps = append(run.Steps, StepResult{
			StepName: name,
			ExitCode: res.ExitCode,
			LogPath:  logPath,
			Elapsed:  res.Elapsed,
		})
		state = Next(state, StepOutcome{ExitCode: res.ExitCode, Failed: res.Failed()})
		t.Logger.Info("transaction step finished",
			"step", name,
			"state", state.String(),
			"exit_code", res.ExitCode,
		)
	}

	// Teardown failure is rare and does not block the wipe.
	res, _ := t.Service.Stop(ctx)
	record("teardown", "", res)

	record("wipe", "", t.wipeStep())

	res, _ = t.Service.Recreate(ctx)
	record("recreate", "", res)

	record("readiness_1", "", t.waitStep(ctx, rc))

	res, _ = t.Service.StopWorkers(ctx)
	record("stop_workers", "", res)

	// The restore tool has been observed exiting 0 after running out of
	// disk, so the captured log is scanned as a second signal.
	res, _ = t.Service.RestoreBackup(ctx, rc.Artifact.DerivedName, restoreLog)
	run.RestoreExitCode = res.ExitCode
	if marker, err := t.scan(restoreLog); err != nil {
		t.Logger.Warn("restore log scan failed", "path", restoreLog, "error", err.Error())
	} else if marker {
		run.RestoreSpaceExhausted = true
	}
	record("restore", restoreLog, res)

	res, _ = t.Service.Reconfigure(ctx, reconfigureLog)
	record("reconfigure", reconfigureLog, res)

	res, _ = t.Service.Restart(ctx)
	record("restart", "", res)

	record("readiness_2", "", t.waitStep(ctx, rc))

	res, _ = t.Service.VerifyChecks(ctx, verifyLog)
	run.VerifyExitCode = res.ExitCode
	record("verify", verifyLog, res)

	run.FinishedAt = rc.clock()
	return run, nil
}

func (t *Transaction) wipeStep() command.Result {
	if err := WipeData(t.DataDir, t.BackupsSubdir); err != nil {
		t.Logger.Error("data wipe failed", "data_dir", t.DataDir, "error", err.Error())
		return command.Result{ExitCode: 1}
	}
	return command.Result{}
}

func (t *Transaction) waitStep(ctx context.Context, rc *RunContext) command.Result {
	start := rc.clock()
	if err := t.Readiness.Wait(ctx); err != nil {
		t.Logger.Error("readiness wait failed", "error", err.Error())
		return command.Result{ExitCode: 1, Elapsed: rc.clock().Sub(start)}
	}
	return command.Result{Elapsed: rc.clock().Sub(start)}
}

func (t *Transaction) scan(logPath string) (bool, error) {
	if t.ScanLog != nil {
		return t.ScanLog(logPath)
	}
	return ScanForMarker(logPath)
}

func (t *Transaction) holdReboot() {
	if t.MarkerPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.MarkerPath), 0o755); err != nil {
		t.Logger.Warn("reboot marker directory", "error", err.Error())
		return
	}
	if err := os.WriteFile(t.MarkerPath, []byte("restore transaction in progress\n"), 0o644); err != nil {
		t.Logger.Warn("reboot marker write failed", "path", t.MarkerPath, "error", err.Error())
	}
}

func (t *Transaction) releaseReboot() {
	if t.MarkerPath == "" {
		return
	}
	if err := os.Remove(t.MarkerPath); err != nil && !os.IsNotExist(err) {
		t.Logger.Warn("reboot marker remove failed", "path", t.MarkerPath, "error", err.Error())
	}
}
