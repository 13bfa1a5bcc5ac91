package history

import "errors"

// Sentinel errors for the history layer.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceUnknown is returned when a history query references a
	// device id with no rows at all.
	ErrDeviceUnknown = errors.New("history: unknown device")
)
