package remote

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/meziane/drclone/internal/command"
)

// Listing-format selectors. "linux" expects GNU ls --full-time output,
// "nas" the abbreviated month-name format of busybox-style appliances.
const (
	HostKindLinux = "linux"
	HostKindNAS   = "nas"
)

// Artifact is one discovered remote backup file. Immutable once selected.
type Artifact struct {
	Path      string
	SizeBytes int64
	ModTime   time.Time
	// DerivedName is the base name with the fixed archive suffix
	// stripped, the form the restore tool expects.
	DerivedName string
}

// Lister obtains the raw remote directory listing over ssh.
type Lister struct {
	Runner command.Runner
	Host   string
	User   string
	Dir    string
	Kind   string
	Suffix string
}

// List returns the raw listing lines for the remote archive directory.
// The glob expands on the remote shell so lines carry full paths. A failed
// listing is fatal for the run; the raw output travels with the error so
// the operator can diagnose auth or path problems.
func (l *Lister) List(ctx context.Context) ([]string, string, error) {
	target := fmt.Sprintf("%s@%s", l.User, l.Host)
	args := []string{target, "ls", "-l"}
	if l.Kind == HostKindLinux {
		args = append(args, "--full-time")
	}
	args = append(args, l.Dir+"/*"+l.Suffix+"*")

	out, res, err := l.Runner.Output(ctx, "ssh", args...)
	raw := string(out)
	if err != nil {
		return nil, raw, fmt.Errorf("remote listing: %w", err)
	}
	if res.Failed() {
		return nil, raw, fmt.Errorf("remote listing exited %d", res.ExitCode)
	}
	return strings.Split(strings.TrimRight(raw, "\n"), "\n"), raw, nil
}

// ParseListing extracts artifacts from ls -l style output. Lines that do
// not match the expected shape (totals, directories, noise) are skipped.
func ParseListing(lines []string, hostKind, archiveSuffix string, now time.Time) []Artifact {
	var artifacts []Artifact
	for _, line := range lines {
		art, ok := parseLine(line, hostKind, archiveSuffix, now)
		if ok {
			artifacts = append(artifacts, art)
		}
	}
	return artifacts
}

func parseLine(line, hostKind, archiveSuffix string, now time.Time) (Artifact, bool) {
	fields := strings.Fields(line)
	if len(fields) < 9 || !strings.HasPrefix(fields[0], "-") {
		return Artifact{}, false
	}

	size, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Artifact{}, false
	}

	var ts time.Time
	switch hostKind {
	case HostKindNAS:
		ts, err = parseNASTime(fields[5], fields[6], fields[7], now)
	default:
		ts, err = parseLinuxTime(fields[5], fields[6], fields[7])
	}
	if err != nil {
		return Artifact{}, false
	}

	filePath := fields[len(fields)-1]
	if !strings.HasSuffix(filePath, archiveSuffix) &&
		!strings.HasSuffix(filePath, archiveSuffix+".zst") {
		return Artifact{}, false
	}

	return Artifact{
		Path:        filePath,
		SizeBytes:   size,
		ModTime:     ts,
		DerivedName: DeriveName(filePath, archiveSuffix),
	}, true
}

// parseLinuxTime handles GNU ls --full-time:
// "2024-03-01 03:12:45.123456789 +0100". The offset column is honored so
// ModTime is a correct instant, not a zone-stripped wall clock.
func parseLinuxTime(date, clock, zone string) (time.Time, error) {
	if i := strings.IndexByte(clock, '.'); i >= 0 {
		clock = clock[:i]
	}
	return time.Parse("2006-01-02 15:04:05 -0700", date+" "+clock+" "+zone)
}

// parseNASTime handles "Mar  1 03:12" and "Mar  1 2023" listings. The
// clock form carries no year; assume the current one, rolling back a year
// when that would place the file in the future.
func parseNASTime(month, day, clockOrYear string, now time.Time) (time.Time, error) {
	if strings.Contains(clockOrYear, ":") {
		ts, err := time.Parse("Jan 2 15:04 2006", fmt.Sprintf("%s %s %s %d", month, day, clockOrYear, now.Year()))
		if err != nil {
			return time.Time{}, err
		}
		if ts.After(now) {
			ts = ts.AddDate(-1, 0, 0)
		}
		return ts, nil
	}
	return time.Parse("Jan 2 2006", fmt.Sprintf("%s %s %s", month, day, clockOrYear))
}

// DeriveName strips the directory, an optional compression extension, and
// the fixed archive suffix from a remote path.
func DeriveName(filePath, archiveSuffix string) string {
	name := path.Base(filePath)
	name = strings.TrimSuffix(name, ".zst")
	return strings.TrimSuffix(name, archiveSuffix)
}

// SelectForDate picks the most recent artifact whose name embeds the given
// calendar date. Nil means no artifact was produced today.
func SelectForDate(artifacts []Artifact, day time.Time) *Artifact {
	token := day.Format("2006_01_02")

	sorted := make([]Artifact, len(artifacts))
	copy(sorted, artifacts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ModTime.After(sorted[j].ModTime)
	})

	for i := range sorted {
		if strings.Contains(path.Base(sorted[i].Path), token) {
			return &sorted[i]
		}
	}
	return nil
}
