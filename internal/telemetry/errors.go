package telemetry

import "errors"

// Sentinel errors for telemetry processing.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedSnapshot indicates a payload that could not be decoded.
	ErrMalformedSnapshot = errors.New("telemetry: malformed snapshot")

	// ErrDuplicateDevice indicates a snapshot listing the same device twice.
	ErrDuplicateDevice = errors.New("telemetry: duplicate device id in snapshot")
)
