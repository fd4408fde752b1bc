package collector

import "errors"

// Domain errors for the collector package.
var (
	// ErrUnknownKind is returned by Build for entries whose kind is not
	// supported.
	ErrUnknownKind = errors.New("collector: unsupported device kind")

	// ErrInvalidInterval is returned when the scheduler interval is not
	// positive.
	ErrInvalidInterval = errors.New("collector: interval must be positive")
)
