package clone

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// SpaceExhaustedMarker is the string the restore tool writes when the disk
// fills mid-restore. It has been seen alongside a zero exit code, so the
// log is treated as an independent failure signal.
const SpaceExhaustedMarker = "No space left on device"

// ScanForMarker reports whether the captured log contains the out-of-space
// marker. The brittle string match stays isolated here.
func ScanForMarker(logPath string) (bool, error) {
	file, err := os.Open(logPath)
	if err != nil {
		return false, fmt.Errorf("open restore log %q: %w", logPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), SpaceExhaustedMarker) {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("scan restore log %q: %w", logPath, err)
	}
	return false, nil
}
