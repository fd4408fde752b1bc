// Package collector runs the poll, build and write cycle on a fixed cadence.
//
// One cycle:
//
//	Poller.Poll -> classify each outcome -> Build measurements -> Sink.WritePoints
//
// Classification, per registry entry in order:
//   - no feed: skipped, nothing logged
//   - timeout: skipped, nothing logged
//   - failure: one warning with address, feed and error_kind, device skipped
//   - success: measurements built
//
// Every measurement of a cycle carries the cycle start time truncated to
// milliseconds. The sink is called once per cycle with the whole batch; a
// write failure is logged and counted, never retried.
//
// The Scheduler starts a cycle every interval measured from the previous
// start. A cycle that overruns is followed immediately by the next one.
package collector
