package tsdb

import "errors"

// Sentinel errors returned by Client. Check with errors.Is.
var (
	// ErrNotConnected is returned by WritePoints after Close or a failed Connect.
	ErrNotConnected = errors.New("tsdb: not connected")

	// ErrConnectionFailed is returned by Connect when /health does not answer 200.
	ErrConnectionFailed = errors.New("tsdb: connection failed")

	// ErrWriteFailed wraps transport errors and non-2xx replies to /write.
	// The whole batch is lost; callers do not retry.
	ErrWriteFailed = errors.New("tsdb: write failed")

	// ErrDisabled is returned by Connect when tsdb.enabled is false.
	ErrDisabled = errors.New("tsdb: disabled in configuration")
)
