package clone

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meziane/drclone/internal/command"
	"github.com/meziane/drclone/internal/guard"
	"github.com/meziane/drclone/internal/logger"
	"github.com/meziane/drclone/internal/remote"
)

// fakeController scripts exit codes per operation and records call order.
type fakeController struct {
	calls       []string
	exitCodes   map[string]int
	restoreName string
	onStop      func()
}

func (f *fakeController) result(op string) (command.Result, error) {
	f.calls = append(f.calls, op)
	return command.Result{ExitCode: f.exitCodes[op], Elapsed: time.Millisecond}, nil
}

func (f *fakeController) Stop(ctx context.Context) (command.Result, error) {
	if f.onStop != nil {
		f.onStop()
	}
	return f.result("stop")
}
func (f *fakeController) Recreate(ctx context.Context) (command.Result, error) {
	return f.result("recreate")
}
func (f *fakeController) StopWorkers(ctx context.Context) (command.Result, error) {
	return f.result("stop_workers")
}
func (f *fakeController) RestoreBackup(ctx context.Context, name, logPath string) (command.Result, error) {
	f.restoreName = name
	return f.result("restore")
}
func (f *fakeController) Reconfigure(ctx context.Context, logPath string) (command.Result, error) {
	return f.result("reconfigure")
}
func (f *fakeController) Restart(ctx context.Context) (command.Result, error) {
	return f.result("restart")
}
func (f *fakeController) VerifyChecks(ctx context.Context, logPath string) (command.Result, error) {
	return f.result("verify")
}

type fakeWaiter struct{ waits int }

func (w *fakeWaiter) Wait(ctx context.Context) error {
	w.waits++
	return nil
}

func completedTransfers() []remote.TransferResult {
	return []remote.TransferResult{
		{Kind: remote.KindDatabase, Succeeded: true},
		{Kind: remote.KindSecrets, Succeeded: true},
		{Kind: remote.KindSSHKeys, Succeeded: true},
		{Kind: remote.KindCompose, Succeeded: true},
	}
}

func testRunContext(t *testing.T) *RunContext {
	t.Helper()
	return &RunContext{
		ID:         uuid.New(),
		ServerName: "git.example.com",
		Artifact:   &remote.Artifact{Path: "/b/1709254338_2024_03_01_16.9.1_gitlab_backup.tar", DerivedName: "1709254338_2024_03_01_16.9.1"},
		Transfers:  completedTransfers(),
		Space:      guard.SpaceCheckResult{Sufficient: true},
		LogDir:     t.TempDir(),
		Now:        time.Now,
	}
}

func testTransaction(t *testing.T, ctrl *fakeController, waiter *fakeWaiter) *Transaction {
	t.Helper()
	dataDir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	return &Transaction{
		Service:       ctrl,
		Readiness:     waiter,
		Logger:        logger.Global(),
		DataDir:       dataDir,
		BackupsSubdir: "backups",
		ScanLog:       func(string) (bool, error) { return false, nil },
	}
}

func TestTransactionRefusesIncompleteTransfer(t *testing.T) {
	ctrl := &fakeController{exitCodes: map[string]int{}}
	txn := testTransaction(t, ctrl, &fakeWaiter{})

	// Seed the data directory to prove nothing is touched.
	canary := filepath.Join(txn.DataDir, "repositories")
	require.NoError(t, os.MkdirAll(canary, 0o755))

	rc := testRunContext(t)
	rc.Transfers[1].Succeeded = false // secrets missing

	run, err := txn.Run(context.Background(), rc)
	assert.ErrorIs(t, err, ErrTransferIncomplete)
	assert.Nil(t, run)
	assert.Empty(t, ctrl.calls, "no destructive step may execute")
	assert.DirExists(t, canary)
}

func TestTransactionRefusesInsufficientSpace(t *testing.T) {
	ctrl := &fakeController{exitCodes: map[string]int{}}
	txn := testTransaction(t, ctrl, &fakeWaiter{})

	rc := testRunContext(t)
	rc.Space.Sufficient = false

	_, err := txn.Run(context.Background(), rc)
	assert.ErrorIs(t, err, ErrSpaceInsufficient)
	assert.Empty(t, ctrl.calls)
}

func TestTransactionExecutesStepsInOrder(t *testing.T) {
	ctrl := &fakeController{exitCodes: map[string]int{}}
	waiter := &fakeWaiter{}
	txn := testTransaction(t, ctrl, waiter)

	rc := testRunContext(t)
	run, err := txn.Run(context.Background(), rc)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"stop", "recreate", "stop_workers", "restore", "reconfigure", "restart", "verify",
	}, ctrl.calls)
	assert.Equal(t, 2, waiter.waits, "readiness must be awaited after recreate and after restart")
	assert.Equal(t, "1709254338_2024_03_01_16.9.1", ctrl.restoreName)

	names := make([]string, 0, len(run.Steps))
	for _, s := range run.Steps {
		names = append(names, s.StepName)
	}
	assert.Equal(t, []string{
		"teardown", "wipe", "recreate", "readiness_1", "stop_workers",
		"restore", "reconfigure", "restart", "readiness_2", "verify",
	}, names)

	assert.Equal(t, OutcomeSuccess, Classify(run))
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestToleratedFailuresDoNotAbort(t *testing.T) {
	// Teardown, stop-workers, reconfigure, and restart failures are
	// recorded but the sequence still completes.
	ctrl := &fakeController{exitCodes: map[string]int{
		"stop": 1, "stop_workers": 1, "reconfigure": 1, "restart": 1,
	}}
	txn := testTransaction(t, ctrl, &fakeWaiter{})

	run, err := txn.Run(context.Background(), testRunContext(t))
	require.NoError(t, err)

	assert.Len(t, run.Steps, 10)
	assert.Equal(t, OutcomeSuccess, Classify(run))
}

func TestRestoreFailureStillCompletesAndReports(t *testing.T) {
	ctrl := &fakeController{exitCodes: map[string]int{"restore": 2}}
	txn := testTransaction(t, ctrl, &fakeWaiter{})

	run, err := txn.Run(context.Background(), testRunContext(t))
	require.NoError(t, err)

	assert.Contains(t, ctrl.calls, "verify", "verify still runs after a failed restore")
	assert.Equal(t, 2, run.RestoreExitCode)
	assert.Equal(t, OutcomeRestoreFailed, Classify(run))
}

func TestSpaceMarkerOverridesCleanExit(t *testing.T) {
	ctrl := &fakeController{exitCodes: map[string]int{}}
	txn := testTransaction(t, ctrl, &fakeWaiter{})
	txn.ScanLog = func(string) (bool, error) { return true, nil }

	run, err := txn.Run(context.Background(), testRunContext(t))
	require.NoError(t, err)

	assert.Equal(t, 0, run.RestoreExitCode)
	assert.True(t, run.RestoreSpaceExhausted)
	assert.Equal(t, OutcomeRestoreFailed, Classify(run))
}

func TestRebootMarkerHeldDuringTransaction(t *testing.T) {
	ctrl := &fakeController{exitCodes: map[string]int{}}
	txn := testTransaction(t, ctrl, &fakeWaiter{})
	txn.MarkerPath = filepath.Join(t.TempDir(), "hold-reboot")

	var seenDuring bool
	ctrl.onStop = func() {
		_, err := os.Stat(txn.MarkerPath)
		seenDuring = err == nil
	}

	_, err := txn.Run(context.Background(), testRunContext(t))
	require.NoError(t, err)

	assert.True(t, seenDuring, "marker must exist while steps run")
	assert.NoFileExists(t, txn.MarkerPath)
}

func TestNextIsStrictlyOrdered(t *testing.T) {
	order := []State{
		StateIdle, StateTorndown, StateDataWiped, StateRecreated,
		StateAwaitingReady1, StateWorkersStopped, StateRestored,
		StateReconfigured, StateRestarting, StateAwaitingReady2,
		StateVerified, StateTerminal,
	}
	for i := 0; i < len(order)-1; i++ {
		// Advancement is independent of the step outcome.
		assert.Equal(t, order[i+1], Next(order[i], StepOutcome{}))
		assert.Equal(t, order[i+1], Next(order[i], StepOutcome{ExitCode: 1, Failed: true}))
	}
	assert.Equal(t, StateTerminal, Next(StateTerminal, StepOutcome{}))
}

func TestCriticalStates(t *testing.T) {
	assert.True(t, Critical(StateRestored))
	assert.True(t, Critical(StateVerified))
	assert.False(t, Critical(StateTorndown))
	assert.False(t, Critical(StateReconfigured))
}

func TestWipePreservesBackupsSubdir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	backups := filepath.Join(dataDir, "backups")
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "repositories"), 0o755))
	require.NoError(t, os.MkdirAll(backups, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(backups, "old_backup.tar"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "gitaly.pid"), []byte("1"), 0o600))

	require.NoError(t, WipeData(dataDir, "backups"))

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "backups", entries[0].Name())
	assert.FileExists(t, filepath.Join(backups, "old_backup.tar"))
}

func TestWipeWithoutBackupsSubdir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "uploads"), 0o755))

	require.NoError(t, WipeData(dataDir, "backups"))

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
