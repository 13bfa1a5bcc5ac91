package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetglass/fleetglass-core/internal/command"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/config"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/metrics"
	"github.com/fleetglass/fleetglass-core/internal/ledger"
	"github.com/fleetglass/fleetglass-core/internal/telemetry"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "json", Output: "stderr"}, "test")
}

// stubPublisher satisfies the command transport without a broker.
type stubPublisher struct {
	mu        sync.Mutex
	connected bool
	published int
}

func (p *stubPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

func (p *stubPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// testHarness wires a server over in-memory stores and a stub transport.
type testHarness struct {
	server    *Server
	router    http.Handler
	telemetry *telemetry.Store
	ledger    *ledger.Ledger
	publisher *stubPublisher
}

func newTestHarness(t *testing.T, deviceIDs ...string) *testHarness {
	t.Helper()

	logger := testLogger()
	reg := metrics.New()

	store := telemetry.NewStore()
	if len(deviceIDs) > 0 {
		devices := make([]telemetry.Device, 0, len(deviceIDs))
		for _, id := range deviceIDs {
			devices = append(devices, telemetry.Device{
				ID: id, Name: id, Type: "light",
				Status: telemetry.StatusOnline, Value: telemetry.NewValue(1), LastUpdated: 1000,
			})
		}
		store.ApplySnapshot(telemetry.Snapshot{Timestamp: 1000, Devices: devices})
	}

	pub := &stubPublisher{connected: true}
	dispatcher := command.NewDispatcher(pub, store, 1, logger, reg)
	led := ledger.New(time.Hour, logger)
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 60}, logger, reg)
	batch := command.NewBatchCoordinator(dispatcher, store, pub, led, hub, 3, time.Second, 1, logger)

	srv, err := New(Deps{
		Config:         config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:             config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 60},
		Logger:         logger,
		Telemetry:      store,
		Dispatcher:     dispatcher,
		Batch:          batch,
		Ledger:         led,
		Metrics:        reg,
		CommandTimeout: time.Minute,
		ExternalHub:    hub,
		Version:        "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testHarness{
		server:    srv,
		router:    srv.buildRouter(),
		telemetry: store,
		ledger:    led,
		publisher: pub,
	}
}

func (h *testHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with no dependencies should fail")
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("health body: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health body = %v", body)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	h := newTestHarness(t, "lamp-01", "temp-01")

	rec := h.do(t, http.MethodGet, "/api/v1/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d, want 200", rec.Code)
	}

	var snap telemetry.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("snapshot body: %v", err)
	}
	if len(snap.Devices) != 2 {
		t.Errorf("snapshot devices = %d, want 2", len(snap.Devices))
	}
	if snap.Devices[0].ID != "lamp-01" {
		t.Errorf("devices not sorted by id: %s first", snap.Devices[0].ID)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := newTestHarness(t, "lamp-01")

	rec := h.do(t, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if body["fabricConnected"] != false {
		t.Errorf("fabricConnected = %v, want false without MQTT", body["fabricConnected"])
	}
	if body["trackedDevices"] != float64(1) {
		t.Errorf("trackedDevices = %v, want 1", body["trackedDevices"])
	}
}

func TestToggleEndpoint(t *testing.T) {
	h := newTestHarness(t, "lamp-01")

	rec := h.do(t, http.MethodPost, "/api/v1/devices/lamp-01/toggle",
		toggleRequest{TargetStatus: "offline"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("toggle status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("toggle body: %v", err)
	}
	if body["commandId"] == "" || body["deviceId"] != "lamp-01" {
		t.Errorf("toggle body = %v", body)
	}
}

func TestToggleUnknownDevice(t *testing.T) {
	h := newTestHarness(t, "lamp-01")

	rec := h.do(t, http.MethodPost, "/api/v1/devices/ghost/toggle",
		toggleRequest{TargetStatus: "online"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("toggle status = %d, want 404", rec.Code)
	}
}

func TestToggleInvalidTarget(t *testing.T) {
	h := newTestHarness(t, "lamp-01")

	rec := h.do(t, http.MethodPost, "/api/v1/devices/lamp-01/toggle",
		toggleRequest{TargetStatus: "sideways"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("toggle status = %d, want 400", rec.Code)
	}
}

func TestToggleTransportDown(t *testing.T) {
	h := newTestHarness(t, "lamp-01")
	h.publisher.connected = false

	rec := h.do(t, http.MethodPost, "/api/v1/devices/lamp-01/toggle",
		toggleRequest{TargetStatus: "online"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("toggle status = %d, want 503", rec.Code)
	}
}

func TestToggleConflictsWithProcessingBatch(t *testing.T) {
	h := newTestHarness(t, "lamp-01", "lamp-02")

	h.ledger.Add(command.Operation{
		ID:      "op-1",
		Type:    command.TypeBatchToggle,
		Status:  command.OpStatusProcessing,
		Devices: []string{"lamp-01"},
	})

	rec := h.do(t, http.MethodPost, "/api/v1/devices/lamp-01/toggle",
		toggleRequest{TargetStatus: "offline"})
	if rec.Code != http.StatusConflict {
		t.Errorf("toggle status = %d, want 409", rec.Code)
	}

	// Devices outside the batch are unaffected.
	rec = h.do(t, http.MethodPost, "/api/v1/devices/lamp-02/toggle",
		toggleRequest{TargetStatus: "offline"})
	if rec.Code != http.StatusAccepted {
		t.Errorf("toggle status = %d, want 202", rec.Code)
	}
}

func TestBatchToggleEndpoint(t *testing.T) {
	h := newTestHarness(t, "lamp-01", "lamp-02")

	rec := h.do(t, http.MethodPost, "/api/v1/devices/batch-toggle",
		batchToggleRequest{DeviceIDs: []string{"lamp-01", "lamp-02"}, TargetStatus: "offline"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("batch status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var op command.Operation
	if err := json.Unmarshal(rec.Body.Bytes(), &op); err != nil {
		t.Fatalf("batch body: %v", err)
	}
	if op.Status != command.OpStatusProcessing {
		t.Errorf("operation status = %q, want processing", op.Status)
	}
	if len(op.Devices) != 2 {
		t.Errorf("operation devices = %d, want 2", len(op.Devices))
	}

	// The processing operation is immediately queryable.
	rec = h.do(t, http.MethodGet, "/api/v1/operations/"+op.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("operation lookup status = %d, want 200", rec.Code)
	}
}

func TestBatchToggleValidation(t *testing.T) {
	h := newTestHarness(t, "lamp-01", "lamp-02")

	tests := []struct {
		name     string
		req      batchToggleRequest
		wantCode int
	}{
		{"empty", batchToggleRequest{TargetStatus: "online"}, http.StatusBadRequest},
		{"too large", batchToggleRequest{DeviceIDs: []string{"a", "b", "c", "d"}, TargetStatus: "online"}, http.StatusBadRequest},
		{"duplicates", batchToggleRequest{DeviceIDs: []string{"lamp-01", "lamp-01"}, TargetStatus: "online"}, http.StatusBadRequest},
		{"missing devices", batchToggleRequest{DeviceIDs: []string{"lamp-01", "ghost"}, TargetStatus: "online"}, http.StatusNotFound},
		{"bad target", batchToggleRequest{DeviceIDs: []string{"lamp-01"}, TargetStatus: "sideways"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/v1/devices/batch-toggle", tt.req)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestBatchToggleMissingDevicesNamed(t *testing.T) {
	h := newTestHarness(t, "lamp-01")

	rec := h.do(t, http.MethodPost, "/api/v1/devices/batch-toggle",
		batchToggleRequest{DeviceIDs: []string{"lamp-01", "ghost"}, TargetStatus: "online"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ghost") {
		t.Errorf("404 body %q does not name the missing device", rec.Body.String())
	}
}

func TestGetOperationNotFound(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/operations/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHistoryUnconfigured(t *testing.T) {
	h := newTestHarness(t, "lamp-01")

	rec := h.do(t, http.MethodGet, "/api/v1/devices/lamp-01/history", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("device history status = %d, want 503", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/system/history", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("system history status = %d, want 503", rec.Code)
	}
}

func TestHistoryParams(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantSince int64
		wantErr   bool
	}{
		{"defaults", "", 100, 0, false},
		{"explicit", "?limit=5&since=2000", 5, 2000, false},
		{"capped", "?limit=99999", historyMaxLimit, 0, false},
		{"bad limit", "?limit=zero", 0, 0, true},
		{"negative limit", "?limit=-1", 0, 0, true},
		{"bad since", "?since=yesterday", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/history"+tt.query, nil)
			limit, since, err := historyParams(req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("historyParams() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("historyParams() error = %v", err)
			}
			if limit != tt.wantLimit || since != tt.wantSince {
				t.Errorf("historyParams() = (%d, %d), want (%d, %d)", limit, since, tt.wantLimit, tt.wantSince)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rec.Code)
	}
}

func TestWebSocketPrimerAndBroadcast(t *testing.T) {
	h := newTestHarness(t, "lamp-01")
	ts := httptest.NewServer(h.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()      //nolint:errcheck // Test cleanup
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	// Primer snapshot arrives on connect.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck
	var primer WSMessage
	if err := conn.ReadJSON(&primer); err != nil {
		t.Fatalf("reading primer: %v", err)
	}
	if primer.Type != WSTypeSnapshot {
		t.Fatalf("primer type = %q, want snapshot", primer.Type)
	}

	// Broadcasts reach the connected client.
	h.server.hub.BroadcastSnapshot(telemetry.Snapshot{Timestamp: 2000})
	var pushed WSMessage
	if err := conn.ReadJSON(&pushed); err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}
	if pushed.Type != WSTypeSnapshot {
		t.Errorf("broadcast type = %q, want snapshot", pushed.Type)
	}

	// Application-level ping gets a pong.
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing}); err != nil {
		t.Fatalf("writing ping: %v", err)
	}
	var pong WSMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("reading pong: %v", err)
	}
	if pong.Type != WSTypePong {
		t.Errorf("response type = %q, want pong", pong.Type)
	}
}

func TestWebSocketPathConfigurable(t *testing.T) {
	logger := testLogger()
	reg := metrics.New()
	store := telemetry.NewStore()
	pub := &stubPublisher{connected: true}
	dispatcher := command.NewDispatcher(pub, store, 1, logger, reg)
	led := ledger.New(time.Hour, logger)
	hub := NewHub(config.WebSocketConfig{Path: "/live", MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 60}, logger, reg)

	srv, err := New(Deps{
		Config:      config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:          config.WebSocketConfig{Path: "/live", MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 60},
		Logger:      logger,
		Telemetry:   store,
		Dispatcher:  dispatcher,
		Ledger:      led,
		Metrics:     reg,
		ExternalHub: hub,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	router := srv.buildRouter()

	// The configured path is routed: a plain GET reaches the handler and
	// fails the upgrade handshake rather than the router.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/live", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("GET /api/v1/live = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	// The default path is no longer registered.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/v1/ws = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
