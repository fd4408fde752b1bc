package device

import "errors"

// Domain errors for the device package.
var (
	// ErrInvalidEntry is returned when a registry entry is malformed.
	ErrInvalidEntry = errors.New("device: invalid entry")

	// ErrDuplicateAddress is returned when two entries share an address.
	ErrDuplicateAddress = errors.New("device: duplicate address")

	// ErrQueryInFlight is reported when the previous query to a device has
	// not returned yet.
	ErrQueryInFlight = errors.New("device: previous query still in flight")

	// ErrNoHandle is returned when the handle factory yields nothing.
	ErrNoHandle = errors.New("device: no handle")
)
