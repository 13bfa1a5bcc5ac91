package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fleetglass/fleetglass-core/internal/infrastructure/config"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/database"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
	"github.com/fleetglass/fleetglass-core/internal/telemetry"

	_ "github.com/fleetglass/fleetglass-core/migrations"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "json", Output: "stderr"}, "test")
}

// openTestStore creates a migrated store in a temporary directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewStore(db)
}

func testSnapshot(ts int64) telemetry.Snapshot {
	return telemetry.Snapshot{
		Timestamp: ts,
		Devices: []telemetry.Device{
			{
				ID: "temp-01", Name: "Living Room Temp", Type: "temperature", Unit: "°C",
				Status: telemetry.StatusOnline, Value: telemetry.NewValue(21.5), LastUpdated: ts,
			},
			{
				ID: "lamp-01", Name: "Hall Lamp", Type: "light",
				Status: telemetry.StatusOffline, Value: nil, LastUpdated: ts,
			},
		},
		System: telemetry.SystemMetrics{CPU: 12.5, Memory: 48.0, Storage: 61.2, Network: "connected", Timestamp: ts},
	}
}

func TestSaveSnapshotAndDeviceHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, testSnapshot(1000)); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if err := store.SaveSnapshot(ctx, testSnapshot(2000)); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	samples, err := store.DeviceHistory(ctx, "temp-01", 10, 0)
	if err != nil {
		t.Fatalf("DeviceHistory() error = %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("DeviceHistory() = %d samples, want 2", len(samples))
	}
	if samples[0].Timestamp != 2000 {
		t.Errorf("newest first: samples[0].Timestamp = %d, want 2000", samples[0].Timestamp)
	}
	if samples[0].Value == nil || *samples[0].Value != 21.5 {
		t.Errorf("samples[0].Value = %v, want 21.5", samples[0].Value)
	}
	if samples[0].Status != "online" {
		t.Errorf("samples[0].Status = %q, want online", samples[0].Status)
	}
}

func TestOfflineReadingPersistsNullValue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, testSnapshot(1000)); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	samples, err := store.DeviceHistory(ctx, "lamp-01", 10, 0)
	if err != nil {
		t.Fatalf("DeviceHistory() error = %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("DeviceHistory() = %d samples, want 1", len(samples))
	}
	if samples[0].Value != nil {
		t.Errorf("offline reading value = %v, want nil", samples[0].Value)
	}
	if samples[0].Status != "offline" {
		t.Errorf("status = %q, want offline", samples[0].Status)
	}
}

func TestDeviceHistoryLimitAndSince(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for ts := int64(1000); ts <= 5000; ts += 1000 {
		if err := store.SaveSnapshot(ctx, testSnapshot(ts)); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
	}

	limited, err := store.DeviceHistory(ctx, "temp-01", 2, 0)
	if err != nil {
		t.Fatalf("DeviceHistory() error = %v", err)
	}
	if len(limited) != 2 || limited[0].Timestamp != 5000 || limited[1].Timestamp != 4000 {
		t.Errorf("limited history = %+v, want newest two", limited)
	}

	since, err := store.DeviceHistory(ctx, "temp-01", 10, 3000)
	if err != nil {
		t.Fatalf("DeviceHistory() error = %v", err)
	}
	if len(since) != 3 {
		t.Errorf("since=3000 returned %d samples, want 3", len(since))
	}
}

func TestDeviceHistoryUnknownDevice(t *testing.T) {
	store := openTestStore(t)

	_, err := store.DeviceHistory(context.Background(), "ghost", 10, 0)
	if !errors.Is(err, ErrDeviceUnknown) {
		t.Fatalf("DeviceHistory() error = %v, want ErrDeviceUnknown", err)
	}
}

func TestSystemHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for ts := int64(1000); ts <= 3000; ts += 1000 {
		if err := store.SaveSnapshot(ctx, testSnapshot(ts)); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
	}

	samples, err := store.SystemHistory(ctx, 2, 0)
	if err != nil {
		t.Fatalf("SystemHistory() error = %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("SystemHistory() = %d samples, want 2", len(samples))
	}
	if samples[0].Timestamp != 3000 {
		t.Errorf("newest first: samples[0].Timestamp = %d, want 3000", samples[0].Timestamp)
	}
	if samples[0].CPU != 12.5 || samples[0].Network != "connected" {
		t.Errorf("samples[0] = %+v", samples[0])
	}
}

func TestRegisteredDevices(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, testSnapshot(1000)); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	devices, err := store.RegisteredDevices(ctx)
	if err != nil {
		t.Fatalf("RegisteredDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("RegisteredDevices() = %d, want 2", len(devices))
	}
	if devices[0].ID != "lamp-01" || devices[1].ID != "temp-01" {
		t.Errorf("registry order = %s, %s; want lamp-01, temp-01", devices[0].ID, devices[1].ID)
	}

	// Online device advances last_seen; the offline one stays at zero.
	if devices[1].LastSeen != 1000 {
		t.Errorf("temp-01 last_seen = %d, want 1000", devices[1].LastSeen)
	}
	if devices[0].LastSeen != 0 {
		t.Errorf("lamp-01 last_seen = %d, want 0", devices[0].LastSeen)
	}
}

func TestLastSeenDoesNotRegress(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, testSnapshot(2000)); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	// temp-01 goes offline; its last_seen must keep the 2000 mark.
	snap := testSnapshot(3000)
	snap.Devices[0].Status = telemetry.StatusOffline
	snap.Devices[0].Value = nil
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	devices, err := store.RegisteredDevices(ctx)
	if err != nil {
		t.Fatalf("RegisteredDevices() error = %v", err)
	}
	for _, d := range devices {
		if d.ID == "temp-01" && d.LastSeen != 2000 {
			t.Errorf("temp-01 last_seen = %d, want 2000", d.LastSeen)
		}
	}
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for ts := int64(1000); ts <= 4000; ts += 1000 {
		if err := store.SaveSnapshot(ctx, testSnapshot(ts)); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
	}

	// Each snapshot writes 2 device rows and 1 system row; pruning
	// below 3000 removes two snapshots' worth.
	removed, err := store.Prune(ctx, 3000)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 6 {
		t.Errorf("Prune() removed %d rows, want 6", removed)
	}

	samples, err := store.DeviceHistory(ctx, "temp-01", 10, 0)
	if err != nil {
		t.Fatalf("DeviceHistory() error = %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("post-prune history = %d samples, want 2", len(samples))
	}

	// The cutoff is exclusive: a row stamped exactly at the cutoff survives.
	if oldest := samples[len(samples)-1].Timestamp; oldest != 3000 {
		t.Errorf("oldest surviving sample = %d, want 3000", oldest)
	}

	// Registry survives pruning.
	devices, err := store.RegisteredDevices(ctx)
	if err != nil {
		t.Fatalf("RegisteredDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("registry = %d devices after prune, want 2", len(devices))
	}
}
