// Package watcher infers download completion from indirect filesystem
// signals: temporary-file markers, filename renames, and size growth.
//
// A watch session diffs the download directory against a baseline snapshot
// taken before the download was triggered, tracks at most one candidate
// file at a time, and declares the download complete once the candidate's
// size has remained unchanged for a configured stability window with no
// in-progress marker present. Anything short of that, including stalled or
// partially observed downloads, ends in a timeout verdict rather than an
// error.
//
// The watcher has no handle into the browser or network layer. The
// directory it observes is shared with the downloading process, so every
// read tolerates files appearing, renaming, or vanishing between
// observations.
package watcher
