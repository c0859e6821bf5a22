package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// ErrSetup wraps failures that abort a session before polling starts:
// invalid options or an unreadable download directory. Setup failures are
// never retried.
var ErrSetup = errors.New("watch setup failed")

// sizeUnknown marks the candidate size as not yet observed.
const sizeUnknown int64 = -1

// Watcher observes a download directory and decides, without any
// cooperation from the browser process, when an in-flight download has
// finished. It performs read-only inspection: no writes, deletes, or
// renames in the watched directory.
type Watcher struct {
	opts    Options
	ignores []glob.Glob

	// now and pause are swapped out by tests to drive the polling loop
	// deterministically.
	now   func() time.Time
	pause func(ctx context.Context, d time.Duration) error
}

// New validates the options, compiles the ignore patterns, and verifies the
// download directory is readable. Any error here is a setup failure and
// wraps ErrSetup.
func New(opts Options) (*Watcher, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StabilityWindow == 0 {
		opts.StabilityWindow = DefaultStabilityWindow
	}
	if opts.MarkerSuffix == "" {
		opts.MarkerSuffix = DefaultMarkerSuffix
	}
	if opts.IgnorePatterns == nil {
		opts.IgnorePatterns = DefaultIgnorePatterns()
	}

	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: download directory is required", ErrSetup)
	}
	if opts.Timeout < 0 || opts.PollInterval <= 0 || opts.StabilityWindow <= 0 {
		return nil, fmt.Errorf("%w: timeout, poll interval, and stability window must be positive", ErrSetup)
	}
	if opts.PollInterval > opts.StabilityWindow {
		// Stability can never be observed at a coarser granularity than
		// the window itself.
		return nil, fmt.Errorf("%w: poll interval %s exceeds stability window %s",
			ErrSetup, opts.PollInterval, opts.StabilityWindow)
	}

	ignores := make([]glob.Glob, 0, len(opts.IgnorePatterns))
	for _, pattern := range opts.IgnorePatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid ignore pattern %q: %v", ErrSetup, pattern, err)
		}
		ignores = append(ignores, g)
	}

	if _, err := os.ReadDir(opts.Dir); err != nil {
		return nil, fmt.Errorf("%w: download directory unreadable: %v", ErrSetup, err)
	}

	return &Watcher{
		opts:    opts,
		ignores: ignores,
		now:     time.Now,
		pause:   sleepContext,
	}, nil
}

// Options returns the effective options after defaults were applied.
func (w *Watcher) Options() Options {
	return w.opts
}

// Watch polls the download directory until a new file reaches size
// stability or the deadline elapses. The baseline snapshot must have been
// taken immediately before the download-triggering action so that new files
// can be isolated.
//
// Slow or stalled downloads are not errors: they surface as a TimedOut
// verdict. Files vanishing between listing and stat are benign transients
// that reset the stability tracking. The only error Watch returns is
// context cancellation.
func (w *Watcher) Watch(ctx context.Context, baseline Snapshot) (Verdict, error) {
	start := w.now()

	var (
		candidate  string
		lastSize   = sizeUnknown
		sizeSeenAt time.Time // when the current size was first observed
	)

	reset := func() {
		lastSize = sizeUnknown
		sizeSeenAt = time.Time{}
	}

	for {
		elapsed := w.now().Sub(start)
		if elapsed >= w.opts.Timeout {
			return Verdict{Outcome: OutcomeTimedOut, Elapsed: elapsed}, nil
		}

		current, err := TakeSnapshot(w.opts.Dir)
		if err != nil {
			// Listing failed mid-session; treat like an empty poll and
			// let the deadline decide.
			if err := w.pause(ctx, w.opts.PollInterval); err != nil {
				return Verdict{}, err
			}
			continue
		}

		newFiles := current.NewSince(baseline)
		if len(newFiles) == 0 && candidate == "" {
			// No download has started yet.
			if err := w.pause(ctx, w.opts.PollInterval); err != nil {
				return Verdict{}, err
			}
			continue
		}

		marker, provisional := w.classify(newFiles)
		if marker != "" {
			// An active marker always means "not yet stable", even if a
			// prior candidate had begun stabilizing.
			candidate = strings.TrimSuffix(marker, w.opts.MarkerSuffix)
			reset()
			if err := w.pause(ctx, w.opts.PollInterval); err != nil {
				return Verdict{}, err
			}
			continue
		}

		if provisional != "" && provisional != candidate {
			// The observed temporary file disappeared and a different
			// file took its place; the candidate is superseded.
			candidate = provisional
			reset()
		}

		if candidate != "" {
			info, err := os.Stat(filepath.Join(w.opts.Dir, candidate))
			if err != nil {
				// Renamed or removed between listing and stat. Transient;
				// restart stability tracking rather than failing.
				reset()
			} else {
				size := info.Size()
				switch {
				case size == lastSize:
					if w.now().Sub(sizeSeenAt) >= w.opts.StabilityWindow {
						return Verdict{
							Outcome:  OutcomeCompleted,
							Filename: candidate,
							Elapsed:  w.now().Sub(start),
						}, nil
					}
				default:
					// Growth means not yet finished even without a marker.
					lastSize = size
					sizeSeenAt = w.now()
				}
			}
		}

		if err := w.pause(ctx, w.opts.PollInterval); err != nil {
			return Verdict{}, err
		}
	}
}

// classify splits the new-file set into an in-progress marker and a
// provisional candidate. The presence of any marker takes priority over
// treating other files as stable candidates. Names arrive sorted, so when
// several files qualify the lexicographically smallest wins.
func (w *Watcher) classify(newFiles []string) (marker, provisional string) {
	for _, name := range newFiles {
		if strings.HasSuffix(name, w.opts.MarkerSuffix) {
			if marker == "" {
				marker = name
			}
			continue
		}
		if w.ignored(name) {
			continue
		}
		if provisional == "" {
			provisional = name
		}
	}
	return marker, provisional
}

// ignored reports whether the filename matches an auxiliary temp pattern.
func (w *Watcher) ignored(name string) bool {
	for _, g := range w.ignores {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
