package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIncAndExposition(t *testing.T) {
	reg := New()

	reg.Inc(CommandsDispatched)
	reg.Inc(CommandsDispatched)
	reg.SetGauge(PendingCommands, 3)
	reg.Observe(CommandRoundTrip, 0.05)

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	out := string(body)

	if !strings.Contains(out, CommandsDispatched+" 2") {
		t.Errorf("exposition missing counter value:\n%s", out)
	}
	if !strings.Contains(out, PendingCommands+" 3") {
		t.Errorf("exposition missing gauge value:\n%s", out)
	}
	if !strings.Contains(out, SnapshotPersistLatency) {
		t.Errorf("exposition missing histogram %s", SnapshotPersistLatency)
	}
}

func TestUnknownNamesIgnored(t *testing.T) {
	reg := New()

	// Must not panic.
	reg.Inc("nonexistent")
	reg.SetGauge("nonexistent", 1)
	reg.Observe("nonexistent", 1)
}

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not trip duplicate registration.
	a := New()
	b := New()

	a.Inc(SnapshotsIngested)
	b.Inc(SnapshotsIngested)
}
