package remote

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/meziane/drclone/internal/command"
	"github.com/meziane/drclone/internal/logger"
)

// Kind identifies one of the fixed artifacts a clone needs.
type Kind string

const (
	KindDatabase Kind = "database"
	KindSecrets  Kind = "secrets"
	KindSSHKeys  Kind = "sshKeys"
	KindCompose  Kind = "composeFile"
)

// Names of the configuration artifacts on the remote config directory.
const (
	secretsFileName = "gitlab-secrets.json"
	sshHostKeyName  = "ssh_host_ed25519_key"
	composeFileName = "docker-compose.yml"
)

// TransferResult records one copy attempt. Partial failures are reported
// per item; the restore transaction requires the full set.
type TransferResult struct {
	Kind      Kind          `json:"kind"`
	Succeeded bool          `json:"succeeded"`
	ExitCode  int           `json:"exit_code"`
	Elapsed   time.Duration `json:"elapsed"`
}

// AllSucceeded is the aggregate flag gating transaction entry.
func AllSucceeded(results []TransferResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Succeeded {
			return false
		}
	}
	return true
}

// Engine copies archives and configuration artifacts between this host and
// the remote storage host.
type Engine struct {
	Runner command.Runner
	Log    logger.Logger

	Host string
	User string
	// Remote locations.
	ArchiveDir string
	ConfigDir  string
	// Local destinations.
	LocalArchiveDir  string
	LocalConfigDir   string
	LocalComposePath string
	// Owner ("user:group") applied to the fetched archive.
	Owner string
}

func (e *Engine) remote(p string) string {
	return fmt.Sprintf("%s@%s:%s", e.User, e.Host, p)
}

func (e *Engine) scp(ctx context.Context, kind Kind, src, dst string) TransferResult {
	res, err := e.Runner.Run(ctx, "scp", "-p", src, dst)
	if err != nil {
		e.Log.Error("transfer could not start", "kind", string(kind), "src", src, "error", err.Error())
		return TransferResult{Kind: kind, ExitCode: -1, Elapsed: res.Elapsed}
	}
	if res.Failed() {
		e.Log.Error("transfer failed", "kind", string(kind), "src", src, "exit_code", res.ExitCode)
	} else {
		e.Log.Info("transfer completed", "kind", string(kind), "src", src, "duration", res.Elapsed.String())
	}
	return TransferResult{
		Kind:      kind,
		Succeeded: !res.Failed(),
		ExitCode:  res.ExitCode,
		Elapsed:   res.Elapsed,
	}
}

// Fetch copies the selected archive and the fixed configuration artifacts
// from the remote host. Each item reports independently.
func (e *Engine) Fetch(ctx context.Context, art Artifact) []TransferResult {
	results := make([]TransferResult, 0, 4)

	archiveDst := filepath.Join(e.LocalArchiveDir, path.Base(art.Path))
	dbRes := e.scp(ctx, KindDatabase, e.remote(art.Path), archiveDst)
	if dbRes.Succeeded {
		e.normalize(ctx, archiveDst)
	}
	results = append(results, dbRes)

	results = append(results, e.scp(ctx, KindSecrets,
		e.remote(path.Join(e.ConfigDir, secretsFileName)),
		filepath.Join(e.LocalConfigDir, secretsFileName)))

	results = append(results, e.fetchKeyPair(ctx))

	results = append(results, e.scp(ctx, KindCompose,
		e.remote(path.Join(e.ConfigDir, composeFileName)),
		e.LocalComposePath))

	return results
}

// fetchKeyPair copies the host key and its public half; the pair succeeds
// only as a whole.
func (e *Engine) fetchKeyPair(ctx context.Context) TransferResult {
	priv := e.scp(ctx, KindSSHKeys,
		e.remote(path.Join(e.ConfigDir, sshHostKeyName)),
		filepath.Join(e.LocalConfigDir, sshHostKeyName))
	pub := e.scp(ctx, KindSSHKeys,
		e.remote(path.Join(e.ConfigDir, sshHostKeyName+".pub")),
		filepath.Join(e.LocalConfigDir, sshHostKeyName+".pub"))

	combined := TransferResult{
		Kind:      KindSSHKeys,
		Succeeded: priv.Succeeded && pub.Succeeded,
		ExitCode:  priv.ExitCode,
		Elapsed:   priv.Elapsed + pub.Elapsed,
	}
	if combined.ExitCode == 0 {
		combined.ExitCode = pub.ExitCode
	}
	return combined
}

// normalize restores the ownership and permissions the restore tool
// expects on the fetched archive.
func (e *Engine) normalize(ctx context.Context, archivePath string) {
	if res, err := e.Runner.Run(ctx, "chown", e.Owner, archivePath); err != nil || res.Failed() {
		e.Log.Warn("archive chown failed", "path", archivePath)
	}
	if res, err := e.Runner.Run(ctx, "chmod", "0600", archivePath); err != nil || res.Failed() {
		e.Log.Warn("archive chmod failed", "path", archivePath)
	}
}

// Ship pushes a locally produced file to a remote directory. Used by the
// backup flow for the archive and each configuration artifact.
func (e *Engine) Ship(ctx context.Context, kind Kind, localPath, remoteDir string) TransferResult {
	return e.scp(ctx, kind, localPath, e.remote(path.Join(remoteDir, filepath.Base(localPath))))
}

// ShipConfigArtifacts pushes the secrets file, host key pair, and compose
// descriptor alongside the archive so a replica can be rebuilt from the
// remote host alone.
func (e *Engine) ShipConfigArtifacts(ctx context.Context) []TransferResult {
	results := []TransferResult{
		e.Ship(ctx, KindSecrets, filepath.Join(e.LocalConfigDir, secretsFileName), e.ConfigDir),
	}

	priv := e.Ship(ctx, KindSSHKeys, filepath.Join(e.LocalConfigDir, sshHostKeyName), e.ConfigDir)
	pub := e.Ship(ctx, KindSSHKeys, filepath.Join(e.LocalConfigDir, sshHostKeyName+".pub"), e.ConfigDir)
	keys := TransferResult{
		Kind:      KindSSHKeys,
		Succeeded: priv.Succeeded && pub.Succeeded,
		ExitCode:  priv.ExitCode,
		Elapsed:   priv.Elapsed + pub.Elapsed,
	}
	if keys.ExitCode == 0 {
		keys.ExitCode = pub.ExitCode
	}
	results = append(results, keys)

	results = append(results, e.Ship(ctx, KindCompose, e.LocalComposePath, e.ConfigDir))
	return results
}
