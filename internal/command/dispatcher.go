package command

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/metrics"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/mqtt"
)

// pendingCommand tracks one in-flight command awaiting settlement.
// The result channel is buffered so settlement never blocks even when
// nobody is listening (single commands resolve over the live stream).
type pendingCommand struct {
	deviceID string
	ch       chan Result
	timer    *time.Timer
	issuedAt time.Time
}

// Dispatcher publishes device commands on the fabric and tracks them
// until an acknowledgment, a timeout, or a transport failure settles
// them. Every command settles exactly once.
//
// There is deliberately no per-device serialization: correlation is by
// command id only, so multiple outstanding commands per device may
// interleave. Conflict policy lives at the API layer.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Dispatcher struct {
	publisher Publisher
	lookup    DeviceLookup
	topic     string
	qos       byte
	logger    *logging.Logger
	metrics   *metrics.Registry

	mu      sync.Mutex
	pending map[string]*pendingCommand
}

// NewDispatcher creates a Dispatcher publishing on the command issue topic.
func NewDispatcher(publisher Publisher, lookup DeviceLookup, qos byte, logger *logging.Logger, reg *metrics.Registry) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		lookup:    lookup,
		topic:     mqtt.Topics{}.CommandIssue(),
		qos:       qos,
		logger:    logger,
		metrics:   reg,
		pending:   make(map[string]*pendingCommand),
	}
}

// Send dispatches a single toggle command to one device.
//
// The call returns as soon as the command is published; the outcome
// arrives later on the returned channel (buffered, never blocks the
// settler). Callers that only need optimistic dispatch may ignore the
// channel.
//
// Failure modes, none of which leave a pending entry behind:
//   - ErrDeviceNotFound: the device id is unknown; nothing is published
//   - ErrTransportUnavailable: the fabric is disconnected
//
// Parameters:
//   - deviceID: Target device
//   - targetStatus: Desired device status (e.g. "online", "offline")
//   - timeout: How long to wait for an acknowledgment before settling
//     the command as timed out
//
// Returns:
//   - string: The generated command id
//   - <-chan Result: Delivers the settled outcome exactly once
//   - error: Validation or transport failure
func (d *Dispatcher) Send(deviceID, targetStatus string, timeout time.Duration) (string, <-chan Result, error) {
	return d.send(deviceID, targetStatus, timeout, "")
}

// send implements Send with an optional batch tag.
func (d *Dispatcher) send(deviceID, targetStatus string, timeout time.Duration, batchID string) (string, <-chan Result, error) {
	if !d.lookup.HasDevice(deviceID) {
		return "", nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if !d.publisher.IsConnected() {
		return "", nil, ErrTransportUnavailable
	}

	cmdType := TypeToggle
	if batchID != "" {
		cmdType = TypeBatchToggle
	}

	id := uuid.NewString()
	cmd := Command{
		ID:           id,
		Type:         cmdType,
		DeviceID:     deviceID,
		TargetStatus: targetStatus,
		Timestamp:    time.Now().UnixMilli(),
		BatchID:      batchID,
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", nil, fmt.Errorf("command: encoding payload: %w", err)
	}

	// Register before publishing so an acknowledgment racing the publish
	// round-trip always finds its pending entry.
	p := &pendingCommand{
		deviceID: deviceID,
		ch:       make(chan Result, 1),
		issuedAt: time.Now(),
	}

	d.mu.Lock()
	d.pending[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		d.settle(id, Result{
			DeviceID: deviceID,
			Success:  false,
			Message:  ErrCommandTimeout.Error(),
			TimedOut: true,
		})
	})
	count := len(d.pending)
	d.mu.Unlock()

	if err := d.publisher.Publish(d.topic, payload, d.qos, false); err != nil {
		d.discard(id)
		return "", nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	d.metrics.Inc(metrics.CommandsDispatched)
	d.metrics.SetGauge(metrics.PendingCommands, float64(count))

	d.logger.Debug("command dispatched",
		"command_id", id,
		"device_id", deviceID,
		"target_status", targetStatus,
		"batch_id", batchID,
	)

	return id, p.ch, nil
}

// settle resolves a pending command exactly once. The delete under the
// mutex is the settlement point: whichever caller removes the entry
// delivers the result; everyone else finds nothing and reports false.
func (d *Dispatcher) settle(commandID string, res Result) bool {
	d.mu.Lock()
	p, ok := d.pending[commandID]
	if !ok {
		d.mu.Unlock()
		return false
	}
	delete(d.pending, commandID)
	count := len(d.pending)
	d.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	p.ch <- res

	switch {
	case res.TimedOut:
		d.metrics.Inc(metrics.CommandsTimedOut)
	case res.Success:
		d.metrics.Inc(metrics.CommandsSucceeded)
	default:
		d.metrics.Inc(metrics.CommandsFailed)
	}
	d.metrics.SetGauge(metrics.PendingCommands, float64(count))
	d.metrics.Observe(metrics.CommandRoundTrip, time.Since(p.issuedAt).Seconds())

	return true
}

// discard removes a pending entry without delivering a result.
// Used when the publish itself failed: the command never left, so there
// is nothing to settle.
func (d *Dispatcher) discard(commandID string) {
	d.mu.Lock()
	p, ok := d.pending[commandID]
	if ok {
		delete(d.pending, commandID)
	}
	d.mu.Unlock()

	if ok && p.timer != nil {
		p.timer.Stop()
	}
}

// HasPending reports whether any command for the device is still awaiting
// settlement.
func (d *Dispatcher) HasPending(deviceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.pending {
		if p.deviceID == deviceID {
			return true
		}
	}
	return false
}

// PendingCount returns the number of commands awaiting settlement.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
