package loki

import "errors"

// Sentinel errors for Loki operations.
var (
	// ErrDisabled indicates Loki forwarding is disabled in config.
	ErrDisabled = errors.New("loki: disabled in configuration")

	// ErrInvalidURL indicates loki.url is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("loki: invalid url")

	// ErrPushFailed indicates a push request was rejected or could not be sent.
	ErrPushFailed = errors.New("loki: push failed")
)
