package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/mqtt"
)

// DefaultBatchMaxSize caps how many devices one batch may target.
const DefaultBatchMaxSize = 20

// BatchCoordinator fans a batch toggle out to individual dispatches and
// aggregates their outcomes into one Operation.
//
// SendBatch returns immediately after dispatch; a collector goroutine
// gathers settled results in completion order and finalizes the
// operation exactly once - either when every command has settled or when
// the overall batch timer fires, in which case unsettled devices receive
// synthetic timeout failures. The results slice therefore always matches
// the request length. Sibling commands are never cancelled.
type BatchCoordinator struct {
	dispatcher *Dispatcher
	lookup     DeviceLookup
	publisher  Publisher
	store      OperationStore
	notifier   Notifier
	logger     *logging.Logger

	maxSize       int
	grace         time.Duration
	responseTopic string
	qos           byte
}

// NewBatchCoordinator creates a BatchCoordinator.
//
// grace is added to the per-command timeout to form the overall batch
// deadline; it covers scheduling and fan-in latency so that in the
// normal case every command settles (by response or its own timer)
// before the batch timer fires.
func NewBatchCoordinator(dispatcher *Dispatcher, lookup DeviceLookup, publisher Publisher, store OperationStore, notifier Notifier, maxSize int, grace time.Duration, qos byte, logger *logging.Logger) *BatchCoordinator {
	if maxSize <= 0 {
		maxSize = DefaultBatchMaxSize
	}
	return &BatchCoordinator{
		dispatcher:    dispatcher,
		lookup:        lookup,
		publisher:     publisher,
		store:         store,
		notifier:      notifier,
		logger:        logger,
		maxSize:       maxSize,
		grace:         grace,
		responseTopic: mqtt.Topics{}.CommandBatchResponse(),
		qos:           qos,
	}
}

// SendBatch dispatches one toggle command per device under a shared
// batch id.
//
// Validation happens before anything is published: an oversized, empty,
// or duplicate-listing batch is rejected outright, and if any device id
// is unknown the whole batch is rejected with a MissingDevicesError
// naming the offenders.
//
// Returns the Operation in its processing state; the finalized record
// lands in the operation store and is pushed through the Notifier.
func (b *BatchCoordinator) SendBatch(deviceIDs []string, targetStatus string, timeout time.Duration) (Operation, error) {
	if len(deviceIDs) == 0 {
		return Operation{}, ErrEmptyBatch
	}
	if len(deviceIDs) > b.maxSize {
		return Operation{}, fmt.Errorf("%w: %d devices exceeds limit of %d", ErrBatchTooLarge, len(deviceIDs), b.maxSize)
	}

	seen := make(map[string]struct{}, len(deviceIDs))
	var missing []string
	for _, id := range deviceIDs {
		if _, dup := seen[id]; dup {
			return Operation{}, fmt.Errorf("%w: %s", ErrDuplicateDevices, id)
		}
		seen[id] = struct{}{}
		if !b.lookup.HasDevice(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return Operation{}, &MissingDevicesError{IDs: missing}
	}

	now := time.Now().UTC()
	op := Operation{
		ID:           uuid.NewString(),
		Type:         TypeBatchToggle,
		TargetStatus: targetStatus,
		Status:       OpStatusProcessing,
		Devices:      append([]string(nil), deviceIDs...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	b.store.Add(op)

	// Fan-in channel sized for every outcome, including synthetic ones
	// for dispatch failures, so forwarders never block.
	agg := make(chan Result, len(deviceIDs))
	for _, id := range deviceIDs {
		_, ch, err := b.dispatcher.send(id, targetStatus, timeout, op.ID)
		if err != nil {
			b.logger.Warn("batch member dispatch failed",
				"batch_id", op.ID,
				"device_id", id,
				"error", err,
			)
			agg <- Result{DeviceID: id, Success: false, Message: err.Error()}
			continue
		}
		go func() { agg <- <-ch }()
	}

	go b.collect(op, agg, timeout+b.grace)

	return op.Clone(), nil
}

// collect gathers results until the batch is complete or the overall
// deadline passes, then finalizes.
func (b *BatchCoordinator) collect(op Operation, agg <-chan Result, wait time.Duration) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	n := len(op.Devices)
	results := make([]Result, 0, n)
	settled := make(map[string]bool, n)

collecting:
	for len(results) < n {
		select {
		case res := <-agg:
			results = append(results, res)
			settled[res.DeviceID] = true
		case <-timer.C:
			break collecting
		}
	}

	// The per-command timers should have settled everything before the
	// batch deadline; fill in any stragglers so the results length always
	// equals the request length.
	for _, id := range op.Devices {
		if !settled[id] {
			results = append(results, Result{
				DeviceID: id,
				Success:  false,
				Message:  ErrCommandTimeout.Error(),
				TimedOut: true,
			})
		}
	}

	b.finalize(op, results)
}

// finalize records the completed operation, notifies live subscribers,
// and publishes the batch response for fabric observers. Called exactly
// once per batch.
func (b *BatchCoordinator) finalize(op Operation, results []Result) {
	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}

	op.Results = results
	op.UpdatedAt = time.Now().UTC()
	op.Message = fmt.Sprintf("%d/%d commands succeeded", succeeded, len(results))
	if succeeded == len(results) {
		op.Status = OpStatusCompleted
	} else {
		op.Status = OpStatusCompletedPartial
	}

	b.store.Update(op)

	if b.notifier != nil {
		b.notifier.OperationUpdate(op.Clone())
	}

	payload, err := json.Marshal(batchResponse{
		CommandID: op.ID,
		Status:    "completed",
		Results:   results,
		Message:   op.Message,
	})
	if err == nil {
		if err := b.publisher.Publish(b.responseTopic, payload, b.qos, false); err != nil {
			b.logger.Warn("publishing batch response failed",
				"batch_id", op.ID,
				"error", err,
			)
		}
	}

	b.logger.Info("batch finalized",
		"batch_id", op.ID,
		"status", op.Status,
		"succeeded", succeeded,
		"total", len(results),
	)
}
