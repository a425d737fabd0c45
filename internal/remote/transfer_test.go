package remote

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meziane/drclone/internal/command"
	"github.com/meziane/drclone/internal/logger"
)

// fakeRunner records invocations and fails commands whose argument list
// contains a configured substring.
type fakeRunner struct {
	calls  [][]string
	failOn string
}

func (f *fakeRunner) run(name string, args []string) (command.Result, error) {
	full := append([]string{name}, args...)
	f.calls = append(f.calls, full)
	if f.failOn != "" && strings.Contains(strings.Join(full, " "), f.failOn) {
		return command.Result{ExitCode: 1, Elapsed: time.Millisecond}, nil
	}
	return command.Result{Elapsed: time.Millisecond}, nil
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	return f.run(name, args)
}

func (f *fakeRunner) RunToFile(ctx context.Context, logPath, name string, args ...string) (command.Result, error) {
	return f.run(name, args)
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, command.Result, error) {
	res, err := f.run(name, args)
	return nil, res, err
}

func testEngine(runner command.Runner) *Engine {
	return &Engine{
		Runner:           runner,
		Log:              logger.Global(),
		Host:             "backup01.example.com",
		User:             "git",
		ArchiveDir:       "/volume1/backups",
		ConfigDir:        "/volume1/backups/config",
		LocalArchiveDir:  "/srv/gitlab/data/backups",
		LocalConfigDir:   "/srv/gitlab/config",
		LocalComposePath: "/srv/gitlab/docker-compose.yml",
		Owner:            "git:git",
	}
}

func testArtifact() Artifact {
	return Artifact{
		Path:        "/volume1/backups/1709254365_2024_03_01_16.9.1_gitlab_backup.tar",
		SizeBytes:   53687091200,
		DerivedName: "1709254365_2024_03_01_16.9.1",
	}
}

func TestFetchReportsEveryKind(t *testing.T) {
	runner := &fakeRunner{}
	results := testEngine(runner).Fetch(context.Background(), testArtifact())

	require.Len(t, results, 4)
	kinds := []Kind{results[0].Kind, results[1].Kind, results[2].Kind, results[3].Kind}
	assert.Equal(t, []Kind{KindDatabase, KindSecrets, KindSSHKeys, KindCompose}, kinds)
	assert.True(t, AllSucceeded(results))
}

func TestFetchBuildsRemoteSource(t *testing.T) {
	runner := &fakeRunner{}
	testEngine(runner).Fetch(context.Background(), testArtifact())

	first := strings.Join(runner.calls[0], " ")
	assert.Contains(t, first, "scp")
	assert.Contains(t, first, "git@backup01.example.com:/volume1/backups/1709254365_2024_03_01_16.9.1_gitlab_backup.tar")
}

func TestFetchNormalizesArchiveOwnership(t *testing.T) {
	runner := &fakeRunner{}
	testEngine(runner).Fetch(context.Background(), testArtifact())

	var sawChown, sawChmod bool
	for _, call := range runner.calls {
		switch call[0] {
		case "chown":
			sawChown = true
			assert.Equal(t, "git:git", call[1])
		case "chmod":
			sawChmod = true
		}
	}
	assert.True(t, sawChown)
	assert.True(t, sawChmod)
}

func TestFetchPartialFailure(t *testing.T) {
	runner := &fakeRunner{failOn: "gitlab-secrets.json"}
	results := testEngine(runner).Fetch(context.Background(), testArtifact())

	assert.False(t, AllSucceeded(results))
	for _, r := range results {
		if r.Kind == KindSecrets {
			assert.False(t, r.Succeeded)
			assert.Equal(t, 1, r.ExitCode)
		} else {
			assert.True(t, r.Succeeded, string(r.Kind))
		}
	}
}

func TestFetchKeyPairFailsAsAWhole(t *testing.T) {
	runner := &fakeRunner{failOn: "ssh_host_ed25519_key.pub"}
	results := testEngine(runner).Fetch(context.Background(), testArtifact())

	for _, r := range results {
		if r.Kind == KindSSHKeys {
			assert.False(t, r.Succeeded)
		}
	}
}

func TestAllSucceededEmptyIsFalse(t *testing.T) {
	assert.False(t, AllSucceeded(nil))
}

func TestShipTargetsRemoteDir(t *testing.T) {
	runner := &fakeRunner{}
	res := testEngine(runner).Ship(context.Background(), KindDatabase,
		"/srv/gitlab/data/backups/1709254365_2024_03_01_16.9.1_gitlab_backup.tar.zst", "/volume1/backups")

	assert.True(t, res.Succeeded)
	last := strings.Join(runner.calls[len(runner.calls)-1], " ")
	assert.Contains(t, last, "git@backup01.example.com:/volume1/backups/1709254365_2024_03_01_16.9.1_gitlab_backup.tar.zst")
}
