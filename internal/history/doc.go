// Package history keeps a local record of poll cycles in SQLite.
//
// Each cycle becomes one cycle_history row: when it started, how long it
// took, how many devices answered, timed out, failed or were skipped, how
// many points were written and the write error if any. Rows older than the
// retention period are pruned as new ones are recorded.
//
// Store implements collector.Recorder and serves the status API.
package history
