package watcher

import (
	"os"
	"sort"
	"time"
)

// Outcome is the terminal result of one watch session.
type Outcome string

const (
	// OutcomeCompleted indicates the download finished and its final file
	// was observed stable on disk.
	OutcomeCompleted Outcome = "completed"

	// OutcomeTimedOut indicates no file reached stability before the
	// deadline elapsed.
	OutcomeTimedOut Outcome = "timed_out"
)

// Verdict is produced exactly once per watch session. A session reports
// either a completed filename or a timeout, never both.
type Verdict struct {
	// Outcome is the terminal classification of the session
	Outcome Outcome

	// Filename is the final name of the downloaded file, set only when
	// Outcome is OutcomeCompleted
	Filename string

	// Elapsed is the time spent watching before the verdict was reached
	Elapsed time.Duration
}

// Completed reports whether the verdict represents a finished download.
func (v Verdict) Completed() bool {
	return v.Outcome == OutcomeCompleted
}

// Options configures a download watch session.
type Options struct {
	// Dir is the directory the downloading agent writes into. It must
	// exist and be readable when the watcher is constructed.
	Dir string

	// Timeout is the maximum total time to wait for a download to
	// complete (default: 30s)
	Timeout time.Duration

	// PollInterval is the sleep between directory observations
	// (default: 1s). Must not exceed StabilityWindow.
	PollInterval time.Duration

	// StabilityWindow is how long a candidate file's size must remain
	// unchanged, with no in-progress marker present, before the download
	// is declared complete (default: 3s)
	StabilityWindow time.Duration

	// MarkerSuffix is the filename suffix the downloading agent appends
	// while a file is incomplete (default: ".crdownload"). This is an
	// external-agent convention, so it is configuration rather than a
	// hardcoded literal.
	MarkerSuffix string

	// IgnorePatterns are glob patterns for auxiliary temporary files that
	// must never be treated as download candidates (default: ["*.tmp"])
	IgnorePatterns []string
}

// Default timing and naming conventions for watch sessions.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultPollInterval    = 1 * time.Second
	DefaultStabilityWindow = 3 * time.Second
	DefaultMarkerSuffix    = ".crdownload"
)

// DefaultIgnorePatterns returns the auxiliary temp-file patterns ignored by
// default during candidate selection.
func DefaultIgnorePatterns() []string {
	return []string{"*.tmp"}
}

// Snapshot is the set of filenames present in a directory at one instant.
// It is used only as a diff basis: new files are the current snapshot minus
// a baseline taken before the download was triggered.
type Snapshot map[string]struct{}

// TakeSnapshot lists the directory and returns its current filename set.
func TakeSnapshot(dir string) (Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	snap := make(Snapshot, len(entries))
	for _, entry := range entries {
		snap[entry.Name()] = struct{}{}
	}
	return snap, nil
}

// NewSince returns the filenames present in s but absent from the baseline,
// sorted lexicographically so candidate selection is deterministic.
func (s Snapshot) NewSince(baseline Snapshot) []string {
	var names []string
	for name := range s {
		if _, ok := baseline[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
