// Package device holds the static device registry and the concurrent poller.
//
// The Registry is built once at startup from configuration and never
// changes. Each Entry carries the feed name and channel names that decide
// what gets reported; names reported live by the devices are never used.
//
// The Poller queries every registered device once per call through a
// Handle, each bounded by the same timeout, and returns one Outcome per
// registry index:
//
//	outcomes := poller.Poll(ctx)
//	for i, o := range outcomes {
//	    entry := registry.Entry(i)
//	    switch o.Kind {
//	    case device.OutcomeSuccess: // o.Snapshot is fresh
//	    case device.OutcomeTimeout: // no answer within the timeout
//	    case device.OutcomeFailure: // o.Err says why
//	    }
//	}
//
// A slow device never holds up the others for longer than the timeout. If a
// Handle ignores its context and keeps running into the next cycle, that
// device is reported as timed out until the stale query returns, and the
// stale result is dropped.
package device
