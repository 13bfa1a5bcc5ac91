package command

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeOperationStore records Add/Update calls and exposes the final
// operation once Update lands.
type fakeOperationStore struct {
	mu      sync.Mutex
	added   []Operation
	updated chan Operation
}

func newFakeOperationStore() *fakeOperationStore {
	return &fakeOperationStore{updated: make(chan Operation, 1)}
}

func (f *fakeOperationStore) Add(op Operation) {
	f.mu.Lock()
	f.added = append(f.added, op)
	f.mu.Unlock()
}

func (f *fakeOperationStore) Update(op Operation) {
	f.updated <- op
}

func (f *fakeOperationStore) addedOps() []Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Operation(nil), f.added...)
}

type fakeNotifier struct {
	updates chan Operation
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{updates: make(chan Operation, 1)}
}

func (f *fakeNotifier) OperationUpdate(op Operation) {
	f.updates <- op
}

func newTestBatch(pub *fakePublisher, lookup *fakeLookup, store *fakeOperationStore, notifier *fakeNotifier, grace time.Duration) (*BatchCoordinator, *Dispatcher) {
	d := newTestDispatcher(pub, lookup)
	b := NewBatchCoordinator(d, lookup, pub, store, notifier, 3, grace, 1, testLogger())
	return b, d
}

func waitOperation(t *testing.T, ch chan Operation) Operation {
	t.Helper()
	select {
	case op := <-ch:
		return op
	case <-time.After(3 * time.Second):
		t.Fatal("operation never finalized")
		return Operation{}
	}
}

func TestSendBatchValidation(t *testing.T) {
	tests := []struct {
		name    string
		devices []string
		wantErr error
	}{
		{"empty", nil, ErrEmptyBatch},
		{"too large", []string{"a", "b", "c", "d"}, ErrBatchTooLarge},
		{"duplicates", []string{"lamp-01", "lamp-01"}, ErrDuplicateDevices},
		{"unknown devices", []string{"lamp-01", "ghost-1", "ghost-2"}, ErrDevicesNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := newFakePublisher()
			store := newFakeOperationStore()
			b, _ := newTestBatch(pub, newFakeLookup("lamp-01", "lamp-02"), store, newFakeNotifier(), time.Second)

			_, err := b.SendBatch(tt.devices, "online", time.Second)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SendBatch() error = %v, want %v", err, tt.wantErr)
			}
			if len(pub.messages()) != 0 {
				t.Error("rejected batch published messages")
			}
			if len(store.addedOps()) != 0 {
				t.Error("rejected batch recorded an operation")
			}
		})
	}
}

func TestSendBatchMissingDevicesNamed(t *testing.T) {
	pub := newFakePublisher()
	b, _ := newTestBatch(pub, newFakeLookup("lamp-01"), newFakeOperationStore(), newFakeNotifier(), time.Second)

	_, err := b.SendBatch([]string{"lamp-01", "ghost-1", "ghost-2"}, "online", time.Second)

	var missing *MissingDevicesError
	if !errors.As(err, &missing) {
		t.Fatalf("SendBatch() error = %T, want MissingDevicesError", err)
	}
	if len(missing.IDs) != 2 {
		t.Fatalf("missing ids = %v, want ghost-1 and ghost-2", missing.IDs)
	}
	if !strings.Contains(err.Error(), "ghost-1") || !strings.Contains(err.Error(), "ghost-2") {
		t.Errorf("error %q does not name the missing devices", err.Error())
	}
}

func TestSendBatchAllSucceed(t *testing.T) {
	pub := newFakePublisher()
	store := newFakeOperationStore()
	notifier := newFakeNotifier()
	b, d := newTestBatch(pub, newFakeLookup("lamp-01", "lamp-02"), store, notifier, time.Second)

	op, err := b.SendBatch([]string{"lamp-01", "lamp-02"}, "online", time.Minute)
	if err != nil {
		t.Fatalf("SendBatch() unexpected error: %v", err)
	}
	if op.Status != OpStatusProcessing {
		t.Errorf("initial status = %q, want processing", op.Status)
	}
	if len(store.addedOps()) != 1 {
		t.Fatalf("ledger Add calls = %d, want 1", len(store.addedOps()))
	}

	// Two member commands on the issue topic, all tagged with the batch.
	msgs := pub.messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d commands, want 2", len(msgs))
	}
	for _, msg := range msgs {
		var cmd Command
		if err := json.Unmarshal(msg.payload, &cmd); err != nil {
			t.Fatalf("payload is not a command: %v", err)
		}
		if cmd.Type != TypeBatchToggle {
			t.Errorf("member type = %q, want %q", cmd.Type, TypeBatchToggle)
		}
		if cmd.BatchID != op.ID {
			t.Errorf("member batch id = %q, want %q", cmd.BatchID, op.ID)
		}
		d.settle(cmd.ID, Result{DeviceID: cmd.DeviceID, Success: true, Status: "online"})
	}

	final := waitOperation(t, store.updated)
	if final.Status != OpStatusCompleted {
		t.Errorf("final status = %q, want completed", final.Status)
	}
	if len(final.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(final.Results))
	}
	if final.Message != "2/2 commands succeeded" {
		t.Errorf("message = %q", final.Message)
	}

	notified := waitOperation(t, notifier.updates)
	if notified.ID != op.ID {
		t.Errorf("notified operation %q, want %q", notified.ID, op.ID)
	}

	// A batch response is published after the two member commands.
	var batchMsgs []publishedMessage
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		batchMsgs = nil
		for _, msg := range pub.messages() {
			if msg.topic == "fleetglass/commands/batch-response" {
				batchMsgs = append(batchMsgs, msg)
			}
		}
		if len(batchMsgs) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(batchMsgs) != 1 {
		t.Fatalf("batch responses = %d, want 1", len(batchMsgs))
	}

	var resp struct {
		CommandID string   `json:"commandId"`
		Status    string   `json:"status"`
		Results   []Result `json:"results"`
		Message   string   `json:"message"`
	}
	if err := json.Unmarshal(batchMsgs[0].payload, &resp); err != nil {
		t.Fatalf("batch response payload: %v", err)
	}
	if resp.CommandID != op.ID || resp.Status != "completed" || len(resp.Results) != 2 {
		t.Errorf("batch response = %+v", resp)
	}
}

func TestSendBatchPartialTimeout(t *testing.T) {
	pub := newFakePublisher()
	store := newFakeOperationStore()
	b, d := newTestBatch(pub, newFakeLookup("lamp-01", "lamp-02", "lamp-03"), store, newFakeNotifier(), 50*time.Millisecond)

	op, err := b.SendBatch([]string{"lamp-01", "lamp-02", "lamp-03"}, "offline", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("SendBatch() unexpected error: %v", err)
	}

	// Acknowledge two of three; the third rides its timer out.
	for _, msg := range pub.messages() {
		var cmd Command
		if err := json.Unmarshal(msg.payload, &cmd); err != nil {
			t.Fatalf("payload is not a command: %v", err)
		}
		if cmd.DeviceID == "lamp-03" {
			continue
		}
		d.settle(cmd.ID, Result{DeviceID: cmd.DeviceID, Success: true, Status: "offline"})
	}

	final := waitOperation(t, store.updated)
	if final.Status != OpStatusCompletedPartial {
		t.Errorf("final status = %q, want completed_partial", final.Status)
	}
	if len(final.Results) != 3 {
		t.Fatalf("results = %d, want 3 (timeouts filled in)", len(final.Results))
	}
	if final.Message != "2/3 commands succeeded" {
		t.Errorf("message = %q", final.Message)
	}

	timedOut := 0
	for _, res := range final.Results {
		if res.DeviceID == "lamp-03" {
			if res.Success {
				t.Error("unacknowledged member settled as success")
			}
			timedOut++
		}
	}
	if timedOut != 1 {
		t.Errorf("lamp-03 results = %d, want 1", timedOut)
	}
	if final.ID != op.ID {
		t.Errorf("finalized operation %q, want %q", final.ID, op.ID)
	}
}

func TestSendBatchDispatchFailureSynthesized(t *testing.T) {
	pub := newFakePublisher()
	pub.publishErr = errors.New("broker rejected")
	store := newFakeOperationStore()
	b, _ := newTestBatch(pub, newFakeLookup("lamp-01", "lamp-02"), store, newFakeNotifier(), 50*time.Millisecond)

	op, err := b.SendBatch([]string{"lamp-01", "lamp-02"}, "online", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("SendBatch() unexpected error: %v", err)
	}

	final := waitOperation(t, store.updated)
	if final.Status != OpStatusCompletedPartial {
		t.Errorf("final status = %q, want completed_partial", final.Status)
	}
	if len(final.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(final.Results))
	}
	for _, res := range final.Results {
		if res.Success {
			t.Errorf("undispatched member %s settled as success", res.DeviceID)
		}
	}
	if final.Message != "0/2 commands succeeded" {
		t.Errorf("message = %q", final.Message)
	}
	if final.ID != op.ID {
		t.Errorf("finalized operation %q, want %q", final.ID, op.ID)
	}
}
