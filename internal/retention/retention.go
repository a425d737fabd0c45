package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/meziane/drclone/internal/logger"
)

// Sweep removes regular files under dir older than maxAge and returns how
// many were deleted. Subdirectories are left alone.
func Sweep(dir string, maxAge time.Duration, log logger.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %q: %w", dir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warn("retention sweep could not remove file", "path", path, "error", err.Error())
			continue
		}
		log.Info("aged artifact removed", "path", path, "mod_time", info.ModTime().String())
		removed++
	}
	return removed, nil
}
