package guard

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// SpaceCheckResult compares the space a restore needs against what the
// target filesystem offers.
type SpaceCheckResult struct {
	RequiredBytes  uint64 `json:"required_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`
	Sufficient     bool   `json:"sufficient"`
}

// FreeBytesFunc reports free bytes on the filesystem hosting path.
type FreeBytesFunc func(path string) (uint64, error)

// DiskFree is the production FreeBytesFunc.
func DiskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("disk usage for %q: %w", path, err)
	}
	return usage.Free, nil
}

// SpaceGate estimates worst-case restore space as the archive size times a
// safety factor and blocks the run when the target filesystem falls short.
type SpaceGate struct {
	Free   FreeBytesFunc
	Factor float64
}

// Check has no side effects; an insufficient result is terminal for the
// caller and nothing destructive may follow it.
func (g SpaceGate) Check(path string, artifactSize int64) (SpaceCheckResult, error) {
	free := g.Free
	if free == nil {
		free = DiskFree
	}

	available, err := free(path)
	if err != nil {
		return SpaceCheckResult{}, err
	}

	required := uint64(float64(artifactSize) * g.Factor)
	return SpaceCheckResult{
		RequiredBytes:  required,
		AvailableBytes: available,
		Sufficient:     required <= available,
	}, nil
}
