package command

import (
	"time"
)

// Command types on the wire.
const (
	TypeToggle      = "toggle"
	TypeBatchToggle = "batchToggle"
)

// Operation statuses tracked in the ledger.
const (
	OpStatusProcessing       = "processing"
	OpStatusCompleted        = "completed"
	OpStatusCompletedPartial = "completed_partial"
)

// Command is the payload published on the command issue topic.
//
// Single commands carry DeviceID and type "toggle"; batch members carry
// the same shape plus the shared BatchID and type "batchToggle".
type Command struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	DeviceID     string `json:"deviceId"`
	TargetStatus string `json:"targetStatus"`
	Timestamp    int64  `json:"timestamp"`
	BatchID      string `json:"batchId,omitempty"`
}

// Response is the acknowledgment payload devices publish on the command
// response topic. Delivery is at-most-once: a response may never arrive,
// arrive late, or arrive after the command already timed out.
type Response struct {
	CommandID string `json:"commandId"`
	DeviceID  string `json:"deviceId"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Status    string `json:"status"`
}

// Result is the settled outcome of one dispatched command.
type Result struct {
	DeviceID string `json:"deviceId"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Status   string `json:"status"`

	// TimedOut marks results synthesised by the acknowledgment timeout
	// rather than a device response.
	TimedOut bool `json:"-"`
}

// Operation is the aggregate record of a batch dispatch. It is stored in
// the ledger at creation (status processing) and updated exactly once at
// finalization.
type Operation struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	TargetStatus string    `json:"targetStatus"`
	Status       string    `json:"status"`
	Devices      []string  `json:"devices"`
	Results      []Result  `json:"results"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers can hold an Operation without
// aliasing ledger state.
func (o Operation) Clone() Operation {
	out := o
	out.Devices = append([]string(nil), o.Devices...)
	out.Results = append([]Result(nil), o.Results...)
	return out
}

// Active reports whether the operation is still collecting results.
func (o Operation) Active() bool {
	return o.Status == OpStatusProcessing
}

// Targets reports whether the operation includes the given device.
func (o Operation) Targets(deviceID string) bool {
	for _, id := range o.Devices {
		if id == deviceID {
			return true
		}
	}
	return false
}

// batchResponse is the payload published on the batch response topic when
// a batch finalizes, for fabric observers that don't hold a WebSocket.
type batchResponse struct {
	CommandID string   `json:"commandId"`
	Status    string   `json:"status"`
	Results   []Result `json:"results"`
	Message   string   `json:"message"`
}

// Publisher is the transport surface the dispatcher needs.
// Implemented by the infrastructure mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// DeviceLookup answers whether a device id is known.
// Implemented by the telemetry store.
type DeviceLookup interface {
	HasDevice(id string) bool
}

// Notifier receives aggregate operation updates for live subscribers.
// Implemented by the WebSocket hub.
type Notifier interface {
	OperationUpdate(op Operation)
}

// OperationStore records batch operations for later queries.
// Implemented by the ledger.
type OperationStore interface {
	Add(op Operation)
	Update(op Operation)
}
