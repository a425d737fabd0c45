package clone

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restore.log")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o640))
	return path
}

func TestScanFindsMarker(t *testing.T) {
	path := writeLog(t, "Unpacking repositories...\ntar: repo.bundle: No space left on device\ndone\n")
	found, err := ScanForMarker(path)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestScanCleanLog(t *testing.T) {
	path := writeLog(t, "Restoring database...\nRestore task is done.\n")
	found, err := ScanForMarker(path)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScanMissingLog(t *testing.T) {
	_, err := ScanForMarker(filepath.Join(t.TempDir(), "absent.log"))
	assert.Error(t, err)
}
