package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fleetglass/fleetglass-core/internal/infrastructure/database"
	"github.com/fleetglass/fleetglass-core/internal/telemetry"
)

// Store persists telemetry snapshots to SQLite and serves history
// queries. It is the durable side of the telemetry pipeline; the live
// telemetry store never reads from it.
type Store struct {
	db *database.DB
}

// NewStore creates a Store over an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// SaveSnapshot persists one snapshot in a single transaction: a
// device_data row per device, one system_metrics row, and a registry
// upsert per device. last_seen only advances for devices reporting
// online, so a device that drops off keeps the timestamp of its last
// real report.
func (s *Store) SaveSnapshot(ctx context.Context, snap telemetry.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: beginning snapshot tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (id, name, type, unit, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			unit = excluded.unit,
			last_seen = CASE WHEN excluded.last_seen > 0 THEN excluded.last_seen ELSE devices.last_seen END
	`)
	if err != nil {
		return fmt.Errorf("history: preparing device upsert: %w", err)
	}
	defer upsert.Close() //nolint:errcheck

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO device_data (device_id, value, status, timestamp)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("history: preparing device insert: %w", err)
	}
	defer insert.Close() //nolint:errcheck

	for _, d := range snap.Devices {
		lastSeen := int64(0)
		if d.Status == telemetry.StatusOnline {
			lastSeen = d.LastUpdated
		}
		if _, err := upsert.ExecContext(ctx, d.ID, d.Name, d.Type, d.Unit, lastSeen); err != nil {
			return fmt.Errorf("history: upserting device %s: %w", d.ID, err)
		}

		var value sql.NullFloat64
		if d.Value != nil {
			value = sql.NullFloat64{Float64: d.Value.Float64(), Valid: true}
		}
		if _, err := insert.ExecContext(ctx, d.ID, value, string(d.Status), d.LastUpdated); err != nil {
			return fmt.Errorf("history: inserting reading for %s: %w", d.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO system_metrics (cpu, memory, storage, network, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, snap.System.CPU, snap.System.Memory, snap.System.Storage, snap.System.Network, snap.Timestamp); err != nil {
		return fmt.Errorf("history: inserting system metrics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: committing snapshot: %w", err)
	}
	return nil
}

// DeviceHistory returns up to limit readings for one device, newest
// first, optionally restricted to timestamps at or after since
// (epoch milliseconds; zero means no lower bound).
func (s *Store) DeviceHistory(ctx context.Context, deviceID string, limit int, since int64) ([]DeviceSample, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, value, status, timestamp
		FROM device_data
		WHERE device_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, deviceID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying device history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var samples []DeviceSample
	for rows.Next() {
		var sample DeviceSample
		var value sql.NullFloat64
		if err := rows.Scan(&sample.DeviceID, &value, &sample.Status, &sample.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scanning device row: %w", err)
		}
		if value.Valid {
			v := value.Float64
			sample.Value = &v
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating device rows: %w", err)
	}

	if len(samples) == 0 {
		known, err := s.deviceExists(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrDeviceUnknown, deviceID)
		}
	}
	return samples, nil
}

// SystemHistory returns up to limit fleet health samples, newest first.
func (s *Store) SystemHistory(ctx context.Context, limit int, since int64) ([]SystemSample, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cpu, memory, storage, network, timestamp
		FROM system_metrics
		WHERE timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying system history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var samples []SystemSample
	for rows.Next() {
		var sample SystemSample
		if err := rows.Scan(&sample.CPU, &sample.Memory, &sample.Storage, &sample.Network, &sample.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scanning system row: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating system rows: %w", err)
	}
	return samples, nil
}

// RegisteredDevices returns every device the registry has ever seen,
// ordered by id. The telemetry store merges these into live snapshots
// so dashboards can show silent devices as offline.
func (s *Store) RegisteredDevices(ctx context.Context) ([]telemetry.RegisteredDevice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, unit, last_seen
		FROM devices
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("history: querying registry: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var devices []telemetry.RegisteredDevice
	for rows.Next() {
		var d telemetry.RegisteredDevice
		if err := rows.Scan(&d.ID, &d.Name, &d.Type, &d.Unit, &d.LastSeen); err != nil {
			return nil, fmt.Errorf("history: scanning registry row: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating registry rows: %w", err)
	}
	return devices, nil
}

// Prune deletes time-series rows with timestamps before the cutoff
// (epoch milliseconds) and returns how many rows were removed. The
// device registry is never pruned.
func (s *Store) Prune(ctx context.Context, cutoff int64) (int64, error) {
	var total int64
	for _, table := range []string{"device_data", "system_metrics"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("history: pruning %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("history: counting pruned %s rows: %w", table, err)
		}
		total += n
	}
	return total, nil
}

func (s *Store) deviceExists(ctx context.Context, deviceID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM devices WHERE id = ?", deviceID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("history: checking device %s: %w", deviceID, err)
	}
	return true, nil
}
