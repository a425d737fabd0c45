package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meziane/drclone/internal/clone"
	"github.com/meziane/drclone/internal/remote"
	"github.com/meziane/drclone/internal/retention"
)

// Backup produces a fresh archive, ships it and the configuration
// artifacts off-host, and sweeps aged local copies.
func (o *Operator) Backup(ctx context.Context) (clone.Outcome, error) {
	running, since, err := o.guard.Check(int32(os.Getpid()), procName)
	if err != nil {
		o.log.Warn("process table scan failed", "error", err.Error())
	}
	if running {
		o.reporter.Report(ctx, clone.OutcomeAlreadyRunning, map[string]any{
			"other_started_at": since,
		})
		return clone.OutcomeAlreadyRunning, nil
	}

	runID := uuid.New()
	startedAt := time.Now()
	day := startedAt.Format("2006-01-02")
	backupLog := filepath.Join(o.cfg.Restore.LogDir, "backup_"+day+".log")

	inst := o.instance()
	res, err := inst.CreateBackup(ctx, backupLog)
	if err != nil || res.Failed() {
		record := RunRecord{
			RunID:     runID.String(),
			Flow:      "backup",
			Outcome:   clone.OutcomeBackupFailed.String(),
			Severity:  string(clone.OutcomeBackupFailed.Severity()),
			StartedAt: startedAt,
		}
		o.reporter.Report(ctx, clone.OutcomeBackupFailed, record)
		return clone.OutcomeBackupFailed, fmt.Errorf("backup tool exited %d", res.ExitCode)
	}

	archivePath, err := o.newestLocalArchive()
	if err != nil {
		o.reporter.Report(ctx, clone.OutcomeNoArtifactFound, map[string]any{
			"error": err.Error(),
		})
		return clone.OutcomeNoArtifactFound, err
	}

	if o.cfg.Backup.Compress {
		compressed, err := CompressZstd(archivePath)
		if err != nil {
			o.log.Warn("compression failed, shipping uncompressed", "error", err.Error())
		} else {
			archivePath = compressed
		}
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return clone.OutcomeNoArtifactFound, fmt.Errorf("stat archive: %w", err)
	}

	engine := o.engine()
	results := []remote.TransferResult{
		engine.Ship(ctx, remote.KindDatabase, archivePath, o.cfg.Remote.ArchiveDir),
	}
	results = append(results, engine.ShipConfigArtifacts(ctx)...)

	outcome := clone.OutcomeSuccess
	if !remote.AllSucceeded(results) {
		outcome = clone.OutcomeTransferFailed
	}

	record := RunRecord{
		RunID:             runID.String(),
		Flow:              "backup",
		Outcome:           outcome.String(),
		Severity:          string(outcome.Severity()),
		StartedAt:         startedAt,
		CompletedAt:       time.Now(),
		Duration:          time.Since(startedAt),
		ArtifactPath:      archivePath,
		ArtifactSizeBytes: info.Size(),
		Transfers:         results,
	}
	if err := record.Write(o.cfg.Restore.LogDir); err != nil {
		o.log.Warn("run record write failed", "error", err.Error())
	}

	o.reporter.Report(ctx, outcome, record)

	if removed, err := retention.Sweep(o.localArchiveDir(), o.cfg.Retention.MaxAge, o.log); err != nil {
		o.log.Warn("retention sweep failed", "error", err.Error())
	} else if removed > 0 {
		o.log.Info("retention sweep done", "removed", removed)
	}

	return outcome, nil
}

// newestLocalArchive finds the archive the backup tool just wrote.
func (o *Operator) newestLocalArchive() (string, error) {
	dir := o.localArchiveDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read backup directory %q: %w", dir, err)
	}

	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), o.cfg.Backup.ArchiveSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, entry.Name())
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no archive matching %q under %q", o.cfg.Backup.ArchiveSuffix, dir)
	}
	return newest, nil
}
