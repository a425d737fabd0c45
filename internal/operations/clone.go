package operations

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/meziane/drclone/internal/clone"
	"github.com/meziane/drclone/internal/guard"
	"github.com/meziane/drclone/internal/remote"
	"github.com/meziane/drclone/internal/retention"
	"github.com/meziane/drclone/internal/service"
)

// Clone executes the full disaster-recovery flow: preflight gates, fetch,
// the restore transaction, classification, and exactly one report. The
// returned outcome decides the process exit code.
func (o *Operator) Clone(ctx context.Context) (clone.Outcome, error) {
	// The guard runs before any other I/O; two transactions racing on
	// one data directory would destroy it.
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

	rc := clone.NewRunContext(o.cfg.Server.Name, o.cfg.Restore.LogDir)
	o.log.Info("clone run starting", "run_id", rc.ID.String(), "server", rc.ServerName)

	// Quiet the monitoring system before the instance goes down.
	o.reporter.TriggerMaintenance(ctx)

	lister := &remote.Lister{
		Runner: o.runner,
		Host:   o.cfg.Remote.Host,
		User:   o.cfg.Remote.User,
		Dir:    o.cfg.Remote.ArchiveDir,
		Kind:   o.cfg.Remote.HostKind,
		Suffix: o.cfg.Backup.ArchiveSuffix,
	}
	lines, raw, err := lister.List(ctx)
	if err != nil {
		o.reporter.Report(ctx, clone.OutcomeNoArtifactFound, map[string]any{
			"error":       err.Error(),
			"raw_listing": raw,
		})
		return clone.OutcomeNoArtifactFound, nil
	}

	artifacts := remote.ParseListing(lines, o.cfg.Remote.HostKind, o.cfg.Backup.ArchiveSuffix, rc.Now())
	rc.Artifact = remote.SelectForDate(artifacts, rc.Now())
	if rc.Artifact == nil {
		o.reporter.Report(ctx, clone.OutcomeNoArtifactFound, map[string]any{
			"candidates":  len(artifacts),
			"raw_listing": raw,
		})
		return clone.OutcomeNoArtifactFound, nil
	}
	o.log.Info("artifact selected",
		"path", rc.Artifact.Path,
		"size_bytes", rc.Artifact.SizeBytes,
	)

	gate := guard.SpaceGate{Factor: o.cfg.Backup.SpaceSafetyFactor}
	rc.Space, err = gate.Check(o.cfg.Server.DataDir, rc.Artifact.SizeBytes)
	if err != nil {
		o.reporter.Report(ctx, clone.OutcomeInsufficientSpace, map[string]any{
			"error": err.Error(),
		})
		return clone.OutcomeInsufficientSpace, fmt.Errorf("space check: %w", err)
	}
	if !rc.Space.Sufficient {
		o.reporter.Report(ctx, clone.OutcomeInsufficientSpace, rc.Space)
		return clone.OutcomeInsufficientSpace, nil
	}

	inst := o.instance()
	engine := o.engine()

	rc.Transfers = engine.Fetch(ctx, *rc.Artifact)
	if !remote.AllSucceeded(rc.Transfers) {
		// The original instance was never touched; optionally bring it
		// back so the replica serves stale data instead of nothing.
		if o.cfg.Restore.RestartOnTransferFailure {
			if _, err := inst.Restart(ctx); err != nil {
				o.log.Warn("restart after transfer failure", "error", err.Error())
			}
		}
		o.reporter.Report(ctx, clone.OutcomeTransferFailed, rc.Transfers)
		return clone.OutcomeTransferFailed, nil
	}

	if err := o.decompressFetchedArchive(rc); err != nil {
		o.reporter.Report(ctx, clone.OutcomeTransferFailed, map[string]any{
			"error": err.Error(),
		})
		return clone.OutcomeTransferFailed, nil
	}

	txn := &clone.Transaction{
		Service: inst,
		Readiness: service.NewPoller(
			o.cfg.Server.HealthURL,
			o.cfg.Restore.ReadinessInterval,
			o.cfg.Restore.ReadinessTimeout,
		),
		Logger:        o.log,
		DataDir:       o.cfg.Server.DataDir,
		BackupsSubdir: o.cfg.Server.BackupsSubdir,
		MarkerPath:    o.cfg.Server.StopRebootFile,
	}

	run, err := txn.Run(ctx, rc)
	if err != nil {
		// Entry was refused; the gates above should have caught this.
		o.reporter.Report(ctx, clone.OutcomeTransferFailed, map[string]any{
			"error": err.Error(),
		})
		return clone.OutcomeTransferFailed, fmt.Errorf("%w: %v", ErrAbortedEarly, err)
	}

	outcome := clone.Classify(run)

	freeAfter, ferr := guard.DiskFree(o.cfg.Server.DataDir)
	if ferr != nil {
		o.log.Warn("post-run space check failed", "error", ferr.Error())
	}

	record := RunRecord{
		RunID:             rc.ID.String(),
		Flow:              "clone",
		Outcome:           outcome.String(),
		Severity:          string(outcome.Severity()),
		StartedAt:         run.StartedAt,
		CompletedAt:       run.FinishedAt,
		Duration:          run.Elapsed(),
		ArtifactPath:      rc.Artifact.Path,
		ArtifactSizeBytes: rc.Artifact.SizeBytes,
		Steps:             run.Steps,
		FreeBytesAfter:    freeAfter,
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

// decompressFetchedArchive unpacks the archive when it was shipped
// compressed, so the restore tool sees the name it expects.
func (o *Operator) decompressFetchedArchive(rc *clone.RunContext) error {
	localPath, compressed := o.fetchedArchivePath(rc)
	if !compressed {
		return nil
	}
	start := time.Now()
	plain, err := DecompressZstd(localPath)
	if err != nil {
		return fmt.Errorf("decompress fetched archive: %w", err)
	}
	o.log.Info("archive decompressed", "path", plain, "duration", time.Since(start).String())
	return nil
}

// fetchedArchivePath is where the transfer engine dropped the archive, and
// whether it still carries the compression extension.
func (o *Operator) fetchedArchivePath(rc *clone.RunContext) (string, bool) {
	base := path.Base(rc.Artifact.Path)
	local := filepath.Join(o.localArchiveDir(), base)
	return local, strings.HasSuffix(base, ".zst")
}
