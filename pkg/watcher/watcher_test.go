package watcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the polling loop deterministically: each pause advances
// virtual time by the requested duration and runs the next scripted
// directory mutation, standing in for the downloading browser process.
type fakeClock struct {
	t     time.Time
	steps []func()
	calls int
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) pause(_ context.Context, d time.Duration) error {
	c.t = c.t.Add(d)
	if c.calls < len(c.steps) && c.steps[c.calls] != nil {
		c.steps[c.calls]()
	}
	c.calls++
	return nil
}

// newTestWatcher builds a watcher over dir with scripted mutations applied
// between polls. steps[0] runs between the first and second observation.
func newTestWatcher(t *testing.T, opts Options, steps []func()) (*Watcher, *fakeClock) {
	t.Helper()

	w, err := New(opts)
	require.NoError(t, err)

	clock := &fakeClock{
		t:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		steps: steps,
	}
	w.now = clock.now
	w.pause = clock.pause
	return w, clock
}

func writeSized(t *testing.T, dir, name string, size int) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), bytes.Repeat([]byte{'x'}, size), 0o644)
	require.NoError(t, err)
}

func remove(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(dir, name)))
}

func TestNew_Validation(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		opts Options
	}{
		{
			name: "missing directory",
			opts: Options{},
		},
		{
			name: "nonexistent directory",
			opts: Options{Dir: filepath.Join(dir, "does-not-exist")},
		},
		{
			name: "poll interval exceeds stability window",
			opts: Options{Dir: dir, PollInterval: 5 * time.Second, StabilityWindow: 2 * time.Second},
		},
		{
			name: "negative timeout",
			opts: Options{Dir: dir, Timeout: -1 * time.Second},
		},
		{
			name: "invalid ignore pattern",
			opts: Options{Dir: dir, IgnorePatterns: []string{"[unterminated"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSetup)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	dir := t.TempDir()

	w, err := New(Options{Dir: dir})
	require.NoError(t, err)

	opts := w.Options()
	assert.Equal(t, DefaultTimeout, opts.Timeout)
	assert.Equal(t, DefaultPollInterval, opts.PollInterval)
	assert.Equal(t, DefaultStabilityWindow, opts.StabilityWindow)
	assert.Equal(t, DefaultMarkerSuffix, opts.MarkerSuffix)
	assert.Equal(t, []string{"*.tmp"}, opts.IgnorePatterns)
}

func TestWatch_StableFileCompletes(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "export.bin", 2048)

	w, _ := newTestWatcher(t, Options{
		Dir:             dir,
		PollInterval:    time.Second,
		StabilityWindow: 3 * time.Second,
	}, nil)

	verdict, err := w.Watch(context.Background(), Snapshot{})
	require.NoError(t, err)

	assert.True(t, verdict.Completed())
	assert.Equal(t, "export.bin", verdict.Filename)
	// Size first observed at t=0, unchanged through t=3.
	assert.Equal(t, 3*time.Second, verdict.Elapsed)
}

func TestWatch_ZeroByteFileCompletes(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "empty.txt", 0)

	w, _ := newTestWatcher(t, Options{
		Dir:             dir,
		PollInterval:    time.Second,
		StabilityWindow: 3 * time.Second,
	}, nil)

	verdict, err := w.Watch(context.Background(), Snapshot{})
	require.NoError(t, err)

	// Size stability, not size non-zero, is the completion signal.
	assert.True(t, verdict.Completed())
	assert.Equal(t, "empty.txt", verdict.Filename)
}

func TestWatch_MarkerBlocksCompletion(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "data.csv", 100)
	writeSized(t, dir, "data.csv.crdownload", 40)

	// Marker survives four polls; its presence must suppress any stability
	// credit the final file would otherwise have accumulated.
	w, _ := newTestWatcher(t, Options{
		Dir:             dir,
		PollInterval:    time.Second,
		StabilityWindow: 3 * time.Second,
	}, []func(){
		nil, nil, nil,
		func() { remove(t, dir, "data.csv.crdownload") },
	})

	verdict, err := w.Watch(context.Background(), Snapshot{})
	require.NoError(t, err)

	assert.True(t, verdict.Completed())
	assert.Equal(t, "data.csv", verdict.Filename)
	// Marker gone after t=4; size recorded at t=4, stable through t=7.
	// Had the pre-marker observations counted, this would be 3s.
	assert.Equal(t, 7*time.Second, verdict.Elapsed)
}

func TestWatch_MarkerRenameScenario(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "report.csv.partial", 250)

	// Marker present at polls 1-2, replaced by the final file at poll 3
	// with a constant size. With a 2s window the verdict lands on poll 5.
	w, _ := newTestWatcher(t, Options{
		Dir:             dir,
		PollInterval:    time.Second,
		StabilityWindow: 2 * time.Second,
		MarkerSuffix:    ".partial",
	}, []func(){
		nil,
		func() {
			remove(t, dir, "report.csv.partial")
			writeSized(t, dir, "report.csv", 500)
		},
	})

	verdict, err := w.Watch(context.Background(), Snapshot{})
	require.NoError(t, err)

	assert.True(t, verdict.Completed())
	assert.Equal(t, "report.csv", verdict.Filename)
	assert.Equal(t, 4*time.Second, verdict.Elapsed)
}

func TestWatch_TransientGapRestartsStability(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "a.log", 100)

	// Sizes observed per poll: 100, 100, gone, 100, 100, ...
	// The gap must restart the stability window; reappearing with the
	// same size earns no credit across it.
	w, _ := newTestWatcher(t, Options{
		Dir:             dir,
		PollInterval:    time.Second,
		StabilityWindow: 3 * time.Second,
	}, []func(){
		nil,
		func() { remove(t, dir, "a.log") },
		func() { writeSized(t, dir, "a.log", 100) },
	})

	verdict, err := w.Watch(context.Background(), Snapshot{})
	require.NoError(t, err)

	assert.True(t, verdict.Completed())
	// Restarted at t=3 after the gap, stable through t=6. Without the
	// restart the verdict would have landed at t=3.
	assert.Equal(t, 6*time.Second, verdict.Elapsed)
}

func TestWatch_NoNewFilesTimesOut(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "old.txt", 10)

	baseline, err := TakeSnapshot(dir)
	require.NoError(t, err)

	w, clock := newTestWatcher(t, Options{
		Dir:             dir,
		Timeout:         5 * time.Second,
		PollInterval:    time.Second,
		StabilityWindow: 3 * time.Second,
	}, nil)

	verdict, err := w.Watch(context.Background(), baseline)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimedOut, verdict.Outcome)
	assert.Empty(t, verdict.Filename)
	// Deadline law: the session never runs past the deadline by more than
	// one poll interval.
	assert.Equal(t, 5*time.Second, verdict.Elapsed)
	assert.Equal(t, 5, clock.calls)
}

func TestWatch_GrowingFileTimesOut(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "big.iso", 100)

	size := 100
	grow := func() {
		size += 100
		writeSized(t, dir, "big.iso", size)
	}

	// The file grows on every poll, so stability is never reached. Partial
	// progress earns no partial credit.
	w, _ := newTestWatcher(t, Options{
		Dir:             dir,
		Timeout:         5 * time.Second,
		PollInterval:    time.Second,
		StabilityWindow: 2 * time.Second,
	}, []func(){grow, grow, grow, grow, grow})

	verdict, err := w.Watch(context.Background(), Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimedOut, verdict.Outcome)
}

func TestWatch_StalledMarkerTimesOut(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "stuck.zip.crdownload", 64)

	w, _ := newTestWatcher(t, Options{
		Dir:             dir,
		Timeout:         4 * time.Second,
		PollInterval:    time.Second,
		StabilityWindow: 2 * time.Second,
	}, nil)

	verdict, err := w.Watch(context.Background(), Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimedOut, verdict.Outcome)
}

func TestWatch_LexicographicTieBreak(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "beta.dat", 30)
	writeSized(t, dir, "alpha.dat", 20)

	w, _ := newTestWatcher(t, Options{
		Dir:             dir,
		PollInterval:    time.Second,
		StabilityWindow: 2 * time.Second,
	}, nil)

	verdict, err := w.Watch(context.Background(), Snapshot{})
	require.NoError(t, err)

	assert.True(t, verdict.Completed())
	assert.Equal(t, "alpha.dat", verdict.Filename)
}

func TestWatch_AuxTempFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "scratch.tmp", 50)

	w, _ := newTestWatcher(t, Options{
		Dir:             dir,
		Timeout:         4 * time.Second,
		PollInterval:    time.Second,
		StabilityWindow: 2 * time.Second,
	}, nil)

	verdict, err := w.Watch(context.Background(), Snapshot{})
	require.NoError(t, err)

	// A lone auxiliary temp file is never a candidate.
	assert.Equal(t, OutcomeTimedOut, verdict.Outcome)
}

func TestWatch_CandidateSuperseded(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "first.dat", 10)

	w, _ := newTestWatcher(t, Options{
		Dir:             dir,
		PollInterval:    time.Second,
		StabilityWindow: 2 * time.Second,
	}, []func(){
		func() {
			remove(t, dir, "first.dat")
			writeSized(t, dir, "second.dat", 99)
		},
	})

	verdict, err := w.Watch(context.Background(), Snapshot{})
	require.NoError(t, err)

	assert.True(t, verdict.Completed())
	assert.Equal(t, "second.dat", verdict.Filename)
}

func TestWatch_ContextCancelled(t *testing.T) {
	dir := t.TempDir()

	w, err := New(Options{Dir: dir, PollInterval: 10 * time.Millisecond, StabilityWindow: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = w.Watch(ctx, Snapshot{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTakeSnapshot_MissingDirectory(t *testing.T) {
	_, err := TakeSnapshot(filepath.Join(t.TempDir(), "gone"))
	require.Error(t, err)
}

func TestSnapshot_NewSince(t *testing.T) {
	baseline := Snapshot{"kept.txt": {}}
	current := Snapshot{"kept.txt": {}, "b.csv": {}, "a.csv": {}}

	names := current.NewSince(baseline)
	assert.Equal(t, []string{"a.csv", "b.csv"}, names)

	assert.Empty(t, baseline.NewSince(baseline))
}
