package command

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for command dispatch.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceNotFound is returned when a command targets an unknown device.
	// Nothing is published.
	ErrDeviceNotFound = errors.New("command: device not found")

	// ErrDevicesNotFound is returned when a batch references unknown devices.
	// Nothing is published. The concrete error is a MissingDevicesError
	// carrying the offending ids.
	ErrDevicesNotFound = errors.New("command: devices not found")

	// ErrCommandTimeout marks a command settled by its acknowledgment timer.
	ErrCommandTimeout = errors.New("command: acknowledgment timeout")

	// ErrTransportUnavailable is returned when the fabric is disconnected.
	// No pending entry is left behind.
	ErrTransportUnavailable = errors.New("command: transport unavailable")

	// ErrBatchTooLarge is returned when a batch exceeds the size limit.
	ErrBatchTooLarge = errors.New("command: batch too large")

	// ErrEmptyBatch is returned when a batch lists no devices.
	ErrEmptyBatch = errors.New("command: batch has no devices")

	// ErrDuplicateDevices is returned when a batch lists a device twice.
	ErrDuplicateDevices = errors.New("command: duplicate devices in batch")
)

// MissingDevicesError reports which batch device ids are unknown.
// It unwraps to ErrDevicesNotFound for errors.Is checks.
type MissingDevicesError struct {
	IDs []string
}

func (e *MissingDevicesError) Error() string {
	return fmt.Sprintf("command: devices not found: %s", strings.Join(e.IDs, ", "))
}

func (e *MissingDevicesError) Unwrap() error {
	return ErrDevicesNotFound
}
