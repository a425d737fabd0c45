package clone

import (
	"fmt"
	"os"
	"path/filepath"
)

// WipeData deletes everything under dataDir except the backup-artifacts
// subdirectory, which is moved aside and back so prior archives survive
// the wipe. Irreversible; callers gate it behind the transfer invariant.
func WipeData(dataDir, backupsSubdir string) error {
	keep := filepath.Join(dataDir, backupsSubdir)
	aside := filepath.Join(filepath.Dir(dataDir), "."+filepath.Base(dataDir)+"-backups-keep")

	kept := false
	if _, err := os.Stat(keep); err == nil {
		if err := os.Rename(keep, aside); err != nil {
			return fmt.Errorf("relocate backups aside: %w", err)
		}
		kept = true
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return fmt.Errorf("read data directory %q: %w", dataDir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dataDir, entry.Name())); err != nil {
			return fmt.Errorf("remove %q: %w", entry.Name(), err)
		}
	}

	if kept {
		if err := os.Rename(aside, keep); err != nil {
			return fmt.Errorf("relocate backups back: %w", err)
		}
	}
	return nil
}
