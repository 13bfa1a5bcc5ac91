package ledger

import (
	"testing"
	"time"

	"github.com/fleetglass/fleetglass-core/internal/command"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/config"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "json", Output: "stderr"}, "test")
}

func testOp(id, status string, devices ...string) command.Operation {
	now := time.Now().UTC()
	return command.Operation{
		ID:           id,
		Type:         command.TypeBatchToggle,
		TargetStatus: "online",
		Status:       status,
		Devices:      devices,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestAddAndGet(t *testing.T) {
	l := New(time.Hour, testLogger())

	l.Add(testOp("op-1", command.OpStatusProcessing, "lamp-01"))

	got, ok := l.Get("op-1")
	if !ok {
		t.Fatal("Get() miss for stored operation")
	}
	if got.ID != "op-1" || got.Status != command.OpStatusProcessing {
		t.Errorf("Get() = %+v", got)
	}

	if _, ok := l.Get("missing"); ok {
		t.Error("Get() hit for unknown operation")
	}
}

func TestUpdateReplacesOperation(t *testing.T) {
	l := New(time.Hour, testLogger())

	l.Add(testOp("op-1", command.OpStatusProcessing, "lamp-01"))

	done := testOp("op-1", command.OpStatusCompleted, "lamp-01")
	done.Message = "1/1 commands succeeded"
	l.Update(done)

	got, ok := l.Get("op-1")
	if !ok {
		t.Fatal("Get() miss after Update()")
	}
	if got.Status != command.OpStatusCompleted || got.Message != "1/1 commands succeeded" {
		t.Errorf("Get() = %+v, want completed", got)
	}
}

func TestUpdateWithoutAddStores(t *testing.T) {
	l := New(time.Hour, testLogger())

	l.Update(testOp("op-1", command.OpStatusCompleted, "lamp-01"))

	if _, ok := l.Get("op-1"); !ok {
		t.Error("finalization without a prior Add was dropped")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	l := New(time.Hour, testLogger())
	l.Add(testOp("op-1", command.OpStatusProcessing, "lamp-01"))

	got, _ := l.Get("op-1")
	got.Devices[0] = "mutated"
	got.Status = command.OpStatusCompleted

	again, _ := l.Get("op-1")
	if again.Devices[0] != "lamp-01" || again.Status != command.OpStatusProcessing {
		t.Error("Get() aliases ledger state")
	}
}

func TestActiveForDevice(t *testing.T) {
	l := New(time.Hour, testLogger())

	l.Add(testOp("op-1", command.OpStatusProcessing, "lamp-01", "lamp-02"))
	l.Add(testOp("op-2", command.OpStatusCompleted, "lamp-03"))

	if !l.ActiveForDevice("lamp-02") {
		t.Error("ActiveForDevice() = false for device in processing batch")
	}
	if l.ActiveForDevice("lamp-03") {
		t.Error("ActiveForDevice() = true for device in completed batch")
	}
	if l.ActiveForDevice("lamp-99") {
		t.Error("ActiveForDevice() = true for untargeted device")
	}

	done := testOp("op-1", command.OpStatusCompletedPartial, "lamp-01", "lamp-02")
	l.Update(done)
	if l.ActiveForDevice("lamp-02") {
		t.Error("ActiveForDevice() = true after finalization")
	}
}

func TestExpiredEntriesSweptOnAdd(t *testing.T) {
	l := New(10*time.Millisecond, testLogger())

	l.Add(testOp("op-old", command.OpStatusCompleted, "lamp-01"))
	time.Sleep(25 * time.Millisecond)
	l.Add(testOp("op-new", command.OpStatusProcessing, "lamp-02"))

	if _, ok := l.Get("op-old"); ok {
		t.Error("expired operation survived the sweep")
	}
	if _, ok := l.Get("op-new"); !ok {
		t.Error("fresh operation swept")
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestNonPositiveTTLDefaults(t *testing.T) {
	l := New(0, testLogger())
	if l.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", l.ttl, DefaultTTL)
	}
}
