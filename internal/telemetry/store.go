package telemetry

import (
	"sort"
	"sync"
)

// Store is the authoritative in-memory snapshot of device and system state.
//
// Telemetry snapshots are the single source of truth: command
// acknowledgments never mutate the store, they only settle dispatches.
// State changes caused by commands arrive through the next snapshot.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Snapshot() returns a defensive copy; callers never receive live
//     references into store internals.
type Store struct {
	mu sync.RWMutex

	devices    map[string]Device
	registered map[string]RegisteredDevice
	system     SystemMetrics
	lastApply  int64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		devices:    make(map[string]Device),
		registered: make(map[string]RegisteredDevice),
	}
}

// ApplySnapshot merges a decoded snapshot into the store atomically.
//
// Device entries are merged in wire order. Offline devices always end up
// with a nil value regardless of what the wire carried. Each touched
// device's LastUpdated is set to the snapshot's wire timestamp, which
// makes re-applying the same snapshot idempotent.
func (s *Store) ApplySnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range snap.Devices {
		d.LastUpdated = snap.Timestamp
		if d.Status == StatusOffline {
			d.Value = nil
		} else if d.Value != nil {
			// Copy so the caller's pointer doesn't alias store state.
			v := *d.Value
			d.Value = &v
		}
		if _, ok := s.registered[d.ID]; ok {
			d.IsRegistered = true
		}
		s.devices[d.ID] = d
	}

	s.system = snap.System
	s.system.Timestamp = snap.Timestamp
	s.lastApply = snap.Timestamp
}

// SetRegistered replaces the registry-known device set.
//
// Registered devices absent from live telemetry appear in Snapshot() as
// offline with a nil value; present devices gain the IsRegistered flag.
func (s *Store) SetRegistered(devices []RegisteredDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registered = make(map[string]RegisteredDevice, len(devices))
	for _, rd := range devices {
		s.registered[rd.ID] = rd
	}
	for id, d := range s.devices {
		_, ok := s.registered[id]
		d.IsRegistered = ok
		s.devices[id] = d
	}
}

// HasDevice reports whether the device is known, either from live
// telemetry or from the durable registry.
func (s *Store) HasDevice(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.devices[id]; ok {
		return true
	}
	_, ok := s.registered[id]
	return ok
}

// DeviceCount returns the number of devices in the live cache.
func (s *Store) DeviceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// Snapshot returns a defensive copy of the merged state: live devices
// plus registry-known absent devices as offline entries. Devices are
// ordered by id for deterministic output.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		if d.Value != nil {
			v := *d.Value
			d.Value = &v
		}
		devices = append(devices, d)
	}

	registered := make([]RegisteredDevice, 0, len(s.registered))
	for _, rd := range s.registered {
		registered = append(registered, rd)
	}

	devices = MergeRegisteredOffline(devices, registered)

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})

	return Snapshot{
		Timestamp: s.lastApply,
		Devices:   devices,
		System:    s.system,
	}
}

// MergeRegisteredOffline appends registry-known devices absent from the
// live list as offline entries with nil values and the IsRegistered flag
// set. Live entries are returned unchanged.
func MergeRegisteredOffline(devices []Device, registered []RegisteredDevice) []Device {
	present := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		present[d.ID] = struct{}{}
	}

	for _, rd := range registered {
		if _, ok := present[rd.ID]; ok {
			continue
		}
		devices = append(devices, Device{
			ID:           rd.ID,
			Name:         rd.Name,
			Type:         rd.Type,
			Unit:         rd.Unit,
			Status:       StatusOffline,
			Value:        nil,
			LastUpdated:  rd.LastSeen,
			IsRegistered: true,
		})
	}

	return devices
}
