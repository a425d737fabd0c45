package service

import (
	"context"

	"github.com/meziane/drclone/internal/command"
	"github.com/meziane/drclone/internal/logger"
)

// Worker processes stopped before the restore tool gets exclusive access
// to the database and storage.
var workerServices = []string{"puma", "sidekiq"}

// Option overrides default settings on an Instance.
type Option func(*Instance)

// Instance controls the single containerized service this host runs. All
// operations shell out through the Runner; the exit code is the only
// cross-process signal.
type Instance struct {
	ComposeFile string
	Container   string
	Logger      logger.Logger

	runner command.Runner
}

// NewInstance returns an Instance driven by the given runner.
func NewInstance(runner command.Runner, opts ...Option) *Instance {
	inst := &Instance{
		Container: "gitlab",
		Logger:    logger.Global(),
		runner:    runner,
	}
	for _, opt := range opts {
		opt(inst)
	}
	return inst
}

// WithComposeFile sets the container-composition descriptor.
func WithComposeFile(path string) Option {
	return func(i *Instance) {
		if path != "" {
			i.ComposeFile = path
		}
	}
}

// WithContainer overrides the container name.
func WithContainer(name string) Option {
	return func(i *Instance) {
		if name != "" {
			i.Container = name
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(log logger.Logger) Option {
	return func(i *Instance) {
		if log != nil {
			i.Logger = log
		}
	}
}

func (i *Instance) compose(ctx context.Context, verb string, extra ...string) (command.Result, error) {
	args := append([]string{"compose", "-f", i.ComposeFile, verb}, extra...)
	return i.runner.Run(ctx, "docker", args...)
}

func (i *Instance) logResult(op string, res command.Result, err error) {
	switch {
	case err != nil:
		i.Logger.Error(op+" could not start", "container", i.Container, "error", err.Error())
	case res.Failed():
		i.Logger.Warn(op+" exited non-zero", "container", i.Container, "exit_code", res.ExitCode)
	default:
		i.Logger.Info(op+" completed", "container", i.Container, "duration", res.Elapsed.String())
	}
}

// Stop tears the running containers down.
func (i *Instance) Stop(ctx context.Context) (command.Result, error) {
	res, err := i.compose(ctx, "stop")
	i.logResult("stop", res, err)
	return res, err
}

// Recreate brings the stack up fresh, ignoring cached container state.
func (i *Instance) Recreate(ctx context.Context) (command.Result, error) {
	res, err := i.compose(ctx, "up", "-d", "--force-recreate")
	i.logResult("recreate", res, err)
	return res, err
}

// Restart restarts the stack's runtime processes.
func (i *Instance) Restart(ctx context.Context) (command.Result, error) {
	res, err := i.compose(ctx, "restart")
	i.logResult("restart", res, err)
	return res, err
}

// StopWorkers halts the web frontend and background-job workers inside the
// container so the restore tool is the only writer. The worst exit code of
// the set is reported.
func (i *Instance) StopWorkers(ctx context.Context) (command.Result, error) {
	worst := command.Result{}
	for _, svc := range workerServices {
		res, err := i.runner.Run(ctx, "docker", "exec", i.Container, "gitlab-ctl", "stop", svc)
		i.logResult("stop "+svc, res, err)
		if err != nil {
			return res, err
		}
		worst.Elapsed += res.Elapsed
		if res.ExitCode > worst.ExitCode {
			worst.ExitCode = res.ExitCode
		}
	}
	return worst, nil
}

// RestoreBackup invokes the in-container restore tool against the named
// archive, capturing its full output to logPath.
func (i *Instance) RestoreBackup(ctx context.Context, name, logPath string) (command.Result, error) {
	res, err := i.runner.RunToFile(ctx, logPath,
		"docker", "exec", i.Container, "gitlab-backup", "restore", "BACKUP="+name, "force=yes")
	i.logResult("restore", res, err)
	return res, err
}

// Reconfigure reapplies the restored configuration to the running instance.
func (i *Instance) Reconfigure(ctx context.Context, logPath string) (command.Result, error) {
	res, err := i.runner.RunToFile(ctx, logPath,
		"docker", "exec", i.Container, "gitlab-ctl", "reconfigure")
	i.logResult("reconfigure", res, err)
	return res, err
}

// VerifyChecks runs the internal consistency check. Only the exit code
// determines verify success.
func (i *Instance) VerifyChecks(ctx context.Context, logPath string) (command.Result, error) {
	res, err := i.runner.RunToFile(ctx, logPath,
		"docker", "exec", i.Container, "gitlab-rake", "gitlab:check", "SANITIZE=true")
	i.logResult("verify", res, err)
	return res, err
}

// CreateBackup drives the in-container backup tool, capturing output.
func (i *Instance) CreateBackup(ctx context.Context, logPath string) (command.Result, error) {
	res, err := i.runner.RunToFile(ctx, logPath,
		"docker", "exec", i.Container, "gitlab-backup", "create")
	i.logResult("backup", res, err)
	return res, err
}
