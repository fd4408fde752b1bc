package kasa

import (
	"errors"

	"github.com/nerrad567/kasametrics/internal/device"
)

// Domain errors for the kasa package.
var (
	// ErrConnectionFailed is returned when the device cannot be reached or
	// the connection breaks mid-request.
	ErrConnectionFailed = errors.New("kasa: connection failed")

	// ErrFrameTooLarge is returned when a response frame exceeds the limit.
	ErrFrameTooLarge = errors.New("kasa: frame too large")

	// ErrInvalidResponse is returned when a response cannot be decoded or is
	// missing the requested section.
	ErrInvalidResponse = errors.New("kasa: invalid response")

	// ErrDeviceError is returned when the device answers with a non-zero
	// err_code.
	ErrDeviceError = errors.New("kasa: device error")
)

// ErrorKind names the class of a query failure for logs: "connection",
// "protocol", "device", "timeout" or "unknown".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case device.IsTimeout(err):
		return "timeout"
	case errors.Is(err, ErrDeviceError):
		return "device"
	case errors.Is(err, ErrInvalidResponse), errors.Is(err, ErrFrameTooLarge):
		return "protocol"
	case errors.Is(err, ErrConnectionFailed):
		return "connection"
	default:
		return "unknown"
	}
}
