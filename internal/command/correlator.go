package command

import (
	"encoding/json"

	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/metrics"
)

// Correlator matches device acknowledgments to pending commands.
//
// Responses are at-most-once and unordered: a response may be late,
// duplicated by the broker, or reference a command that already timed
// out. Anything that doesn't match a pending entry is logged and dropped.
type Correlator struct {
	dispatcher *Dispatcher
	logger     *logging.Logger
	metrics    *metrics.Registry
}

// NewCorrelator creates a Correlator settling into the given dispatcher.
func NewCorrelator(dispatcher *Dispatcher, logger *logging.Logger, reg *metrics.Registry) *Correlator {
	return &Correlator{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    reg,
	}
}

// Handle processes one response payload. The signature matches the MQTT
// message handler so it can be subscribed directly:
//
//	client.Subscribe(topics.CommandResponse(), qos, correlator.Handle)
func (c *Correlator) Handle(topic string, payload []byte) error {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		c.logger.Warn("dropping malformed command response",
			"topic", topic,
			"error", err,
		)
		return nil
	}

	if resp.CommandID == "" {
		c.logger.Warn("dropping command response without command id", "topic", topic)
		return nil
	}

	res := Result{
		DeviceID: resp.DeviceID,
		Success:  resp.Success,
		Message:  resp.Message,
		Status:   resp.Status,
	}

	if !c.dispatcher.settle(resp.CommandID, res) {
		// Late, duplicate, or foreign: the pending entry is gone.
		c.metrics.Inc(metrics.ResponsesUnmatched)
		c.logger.Debug("dropping unmatched command response",
			"command_id", resp.CommandID,
			"device_id", resp.DeviceID,
		)
	}

	return nil
}
