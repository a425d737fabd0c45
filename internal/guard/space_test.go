package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gib = int64(1 << 30)

func fixedFree(free uint64) FreeBytesFunc {
	return func(string) (uint64, error) { return free, nil }
}

func TestSpaceGateBlocksOversizedRestore(t *testing.T) {
	// 50 GiB archive against 40 GiB free with a 1.1 factor: 55 > 40.
	gate := SpaceGate{Free: fixedFree(uint64(40 * gib)), Factor: 1.1}

	archiveSize := 50 * gib
	res, err := gate.Check("/srv/gitlab/data", archiveSize)
	require.NoError(t, err)

	assert.False(t, res.Sufficient)
	assert.Equal(t, uint64(float64(archiveSize)*1.1), res.RequiredBytes)
	assert.Equal(t, uint64(40*gib), res.AvailableBytes)
}

func TestSpaceGateAllowsFittingRestore(t *testing.T) {
	gate := SpaceGate{Free: fixedFree(uint64(120 * gib)), Factor: 1.1}

	res, err := gate.Check("/srv/gitlab/data", 50*gib)
	require.NoError(t, err)
	assert.True(t, res.Sufficient)
}

func TestGuardDetectsOtherInstance(t *testing.T) {
	started := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	g := Guard{Snapshot: func() ([]ProcessInfo, error) {
		return []ProcessInfo{
			{PID: 100, Name: "drclone", Started: started},
			{PID: 200, Name: "drclone", Started: started.Add(time.Hour)},
			{PID: 300, Name: "sshd", Started: started},
		}, nil
	}}

	running, since, err := g.Check(200, "drclone")
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, started, since)
}

func TestGuardIgnoresSelf(t *testing.T) {
	g := Guard{Snapshot: func() ([]ProcessInfo, error) {
		return []ProcessInfo{{PID: 200, Name: "drclone"}}, nil
	}}

	running, _, err := g.Check(200, "drclone")
	require.NoError(t, err)
	assert.False(t, running)
}
