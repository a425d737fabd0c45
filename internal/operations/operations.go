package operations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meziane/drclone/internal/command"
	"github.com/meziane/drclone/internal/config"
	"github.com/meziane/drclone/internal/guard"
	"github.com/meziane/drclone/internal/logger"
	"github.com/meziane/drclone/internal/notify"
	"github.com/meziane/drclone/internal/remote"
	"github.com/meziane/drclone/internal/service"
	"github.com/meziane/drclone/internal/vault"
)

// procName is what the concurrency guard looks for in the process table.
const procName = "drclone"

// ErrAbortedEarly marks runs stopped by a preflight gate; the outcome has
// already been reported when it surfaces.
var ErrAbortedEarly = errors.New("run aborted before the restore transaction")

// Operator wires the components of both flows together from one loaded
// configuration.
type Operator struct {
	cfg      config.Config
	runner   command.Runner
	reporter *notify.Reporter
	guard    guard.Guard
	log      logger.Logger
}

// NewOperator loads and validates the settings file and prepares the
// shared collaborators. Secrets are pulled from Vault when configured.
func NewOperator(ctx context.Context, configPath string) (*Operator, error) {
	log := logger.Global()

	var cfg config.Config
	if err := cfg.Load(configPath); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runner := &command.ExecRunner{}

	reporter := notify.New(runner, log)
	reporter.Object = cfg.Server.Name
	reporter.Recipient = cfg.Notify.Recipient
	reporter.NotifierPath = cfg.Notify.NotifierPath
	reporter.MonitorURL = cfg.Notify.MonitorURL
	reporter.MonitorDuration = cfg.Notify.MonitorDuration

	if cfg.Vault.Address != "" {
		opts := []vault.Option{
			vault.WithAddress(cfg.Vault.Address),
			vault.WithAppRole(cfg.Vault.RoleID, cfg.Vault.ApproleName),
		}
		client, err := vault.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("vault client init: %w", err)
		}
		monitor, err := client.ReadMonitorSecret(ctx, cfg.Vault.KVPath)
		if err != nil {
			log.Warn("monitoring token unavailable", "error", err.Error())
		} else {
			reporter.MonitorToken = monitor.Token
			if monitor.Duration != "" {
				reporter.MonitorDuration = monitor.Duration
			}
		}
		if smtp, err := client.ReadSMTPSecret(ctx, cfg.Vault.KVPath); err == nil {
			runner.Env = append(runner.Env,
				"NOTIFY_SMTP_HOST="+smtp.Host,
				"NOTIFY_SMTP_USER="+smtp.Username,
				"NOTIFY_SMTP_PASS="+smtp.Password,
			)
		} else {
			log.Warn("notifier mail account unavailable", "error", err.Error())
		}
	}

	return &Operator{
		cfg:      cfg,
		runner:   runner,
		reporter: reporter,
		log:      log,
	}, nil
}

func (o *Operator) instance() *service.Instance {
	return service.NewInstance(o.runner,
		service.WithComposeFile(o.cfg.Server.ComposeFile),
		service.WithContainer(o.cfg.Server.Container),
		service.WithLogger(o.log),
	)
}

func (o *Operator) engine() *remote.Engine {
	return &remote.Engine{
		Runner:           o.runner,
		Log:              o.log,
		Host:             o.cfg.Remote.Host,
		User:             o.cfg.Remote.User,
		ArchiveDir:       o.cfg.Remote.ArchiveDir,
		ConfigDir:        o.cfg.Remote.ConfigDir,
		LocalArchiveDir:  o.localArchiveDir(),
		LocalConfigDir:   o.cfg.Server.ConfigDir,
		LocalComposePath: o.cfg.Server.ComposeFile,
		Owner:            o.cfg.Backup.Owner,
	}
}

func (o *Operator) localArchiveDir() string {
	return filepath.Join(o.cfg.Server.DataDir, o.cfg.Server.BackupsSubdir)
}

// ReportConfigFailure is the last-resort notification path when the
// settings file itself cannot be loaded: without it neither recipient nor
// notifier path is known, so a conventional location is tried.
func ReportConfigFailure(ctx context.Context, err error) {
	log := logger.Global()
	log.Error("settings file unusable", "error", err.Error())

	const fallbackNotifier = "/usr/local/bin/drclone-notify"
	if _, statErr := os.Stat(fallbackNotifier); statErr != nil {
		return
	}
	runner := &command.ExecRunner{}
	host, _ := os.Hostname()
	_, _ = runner.Run(ctx, fallbackNotifier,
		host, "settings file missing or unreadable", "CRIT",
		fmt.Sprintf(`{"error":%q}`, err.Error()))
}
